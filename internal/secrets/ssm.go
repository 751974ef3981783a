// Package secrets reads deployment secrets from AWS SSM Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the part of *ssm.Client the provider needs.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

var ErrMissingValue = errors.New("secrets: parameter has no value")

// SSMProvider resolves names relative to a prefix such as /fincoach/prod.
type SSMProvider struct {
	api    ssmAPI
	prefix string
}

func NewSSMProvider(api ssmAPI, prefix string) (*SSMProvider, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	return &SSMProvider{api: api, prefix: strings.TrimRight(prefix, "/")}, nil
}

// NewDefaultSSMProvider uses the ambient AWS credential chain.
func NewDefaultSSMProvider(ctx context.Context, prefix string) (*SSMProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return NewSSMProvider(ssm.NewFromConfig(cfg), prefix)
}

func (p *SSMProvider) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: name is required")
	}
	if p.prefix != "" && !strings.HasPrefix(name, "/") {
		name = path.Join(p.prefix, name)
	}

	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingValue, name)
	}
	return *out.Parameter.Value, nil
}
