package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSSM struct {
	values map[string]string
	names  []string
}

func (s *stubSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	name := aws.ToString(in.Name)
	s.names = append(s.names, name)
	value, ok := s.values[name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(value)}}, nil
}

func TestSSMProviderResolvesRelativeNames(t *testing.T) {
	api := &stubSSM{values: map[string]string{"/fincoach/prod/JWT_SECRET": "jwt"}}
	provider, err := NewSSMProvider(api, "/fincoach/prod/")
	require.NoError(t, err)

	value, err := provider.GetParameter(context.Background(), "JWT_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "jwt", value)
	assert.Equal(t, []string{"/fincoach/prod/JWT_SECRET"}, api.names)
}

func TestSSMProviderWrapsErrors(t *testing.T) {
	provider, err := NewSSMProvider(&stubSSM{}, "/fincoach")
	require.NoError(t, err)

	_, err = provider.GetParameter(context.Background(), "MISSING")
	assert.ErrorContains(t, err, "/fincoach/MISSING")

	_, err = provider.GetParameter(context.Background(), " ")
	assert.Error(t, err)
}
