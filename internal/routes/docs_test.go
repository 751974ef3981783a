package routes

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/config"
)

func TestRegisterDocsRoutesServesIndexAndOpenAPI(t *testing.T) {
	app := fiber.New()
	cfg := &config.Config{AppEnv: "development", EnableDocs: true}

	if err := registerDocsRoutes(app, cfg); err != nil {
		t.Fatalf("registerDocsRoutes: %v", err)
	}

	pageResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/docs", nil))
	if err != nil {
		t.Fatalf("app.Test docs page: %v", err)
	}
	defer pageResp.Body.Close()

	if pageResp.StatusCode != http.StatusOK {
		t.Fatalf("expected docs page status 200, got %d", pageResp.StatusCode)
	}
	if got := pageResp.Header.Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'none'") {
		t.Fatalf("expected restrictive CSP, got %q", got)
	}
	page, _ := io.ReadAll(pageResp.Body)
	if !strings.Contains(string(page), "/functions/v1/cancel-booking") {
		t.Fatal("expected docs index to list function endpoints")
	}

	yamlResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil))
	if err != nil {
		t.Fatalf("app.Test openapi document: %v", err)
	}
	defer yamlResp.Body.Close()

	if yamlResp.StatusCode != http.StatusOK {
		t.Fatalf("expected openapi document status 200, got %d", yamlResp.StatusCode)
	}
	if got := yamlResp.Header.Get(fiber.HeaderContentType); !strings.Contains(got, "application/yaml") {
		t.Fatalf("expected yaml content type, got %q", got)
	}
}

func TestRegisterDocsRoutesSkipsWhenDisabled(t *testing.T) {
	app := fiber.New()
	cfg := &config.Config{AppEnv: "production", EnableDocs: true}

	if err := registerDocsRoutes(app, cfg); err != nil {
		t.Fatalf("registerDocsRoutes: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/docs", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when docs are not in development, got %d", resp.StatusCode)
	}
}

func TestParseOpenAPIOrdersOperations(t *testing.T) {
	data, err := parseOpenAPI([]byte(`
info: {title: Test, version: "2"}
paths:
  /b:
    post: {summary: create b}
    get: {summary: list b}
  /a:
    get: {summary: list a}
`))
	if err != nil {
		t.Fatalf("parseOpenAPI: %v", err)
	}
	if data.Title != "Test" || data.Version != "2" {
		t.Fatalf("unexpected info %+v", data)
	}
	got := make([]string, 0, len(data.Operations))
	for _, op := range data.Operations {
		got = append(got, op.Method+" "+op.Path)
	}
	want := "get /a,get /b,post /b"
	if strings.Join(got, ",") != want {
		t.Fatalf("expected %s, got %s", want, strings.Join(got, ","))
	}
}
