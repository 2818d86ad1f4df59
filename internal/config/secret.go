package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"
)

// Secret defines the credentials used by the object storage backends and by
// remote file downloads.
//
// Each secret is stored as a map of key-value pairs, where the keys and values are strings. Secret type is also declared in the config.
// Secrets may also refer to environment variables using the ${VAR_NAME} syntax. For example:
//
// my_secret:
//
//	type: aws_auth
//	access_key_id: ${AWS_ACCESS_KEY_ID}
//	secret_access_key: ${AWS_SECRET_ACCESS_KEY}
//	session_token: ${AWS_SESSION_TOKEN}
//
// In this case, the actual values will be read from the environment variables AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
// and AWS_SESSION_TOKEN.
//
// Currently the following secret types are supported:
//
//   - "aws_auth" for AWS authentication. Values for keys "access_key_id", "secret_access_key", and optional "session_token" are expected.
//   - "azure_auth" for Azure authentication. Values for keys "account_name" and "account_key" are expected.
//   - "gcp_auth" for Google Cloud authentication. Value for a key "api_key" or "credentials" is expected.
//   - "basic_auth" for HTTP basic authentication. Values for keys "username" and "password" are expected.
//   - "token_auth" for HTTP bearer tokens. Value for a key "token" is expected.
type Secret struct {
	Name  string         `json:"-"`
	Value map[string]any `json:"-"`
}

func (s *Secret) Ref() *SecretRef {
	return &SecretRef{Name: s.Name, value: s}
}

func (*Secret) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.AddType(jsonschema.Object)
	return nil
}

func (s *Secret) MarshalYAML() (any, error) {
	if len(s.Value) == 0 {
		return map[string]any{}, nil
	}
	return s.Value, nil
}

func (s *Secret) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *Secret) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Value); err != nil {
		return fmt.Errorf("expected mapping node: %w", err)
	}
	return nil
}

func (s *Secret) UnmarshalJSON(bs []byte) error {
	return json.Unmarshal(bs, &s.Value)
}

// get retrieves the values from any external source as necessary.
// NB(sr): "external sources" (plural) is aspirational: we support env vars only, so far.
func (s *Secret) get() (map[string]any, error) {
	value := make(map[string]any, len(s.Value))

	for k, v := range s.Value {
		switch v := v.(type) {
		case string:
			value[k] = os.ExpandEnv(v)
		default: // Keep non-string values as is
			value[k] = v
		}
	}

	return value, nil
}

// Typed decodes the secret into one of the Secret* types, selected by its
// "type" key. The returned value is always a pointer, e.g. *SecretAWS.
func (s *Secret) Typed(context.Context) (any, error) {
	m, err := s.get() // Ensure values are resolved
	if err != nil {
		return nil, err
	}

	if len(m) == 0 {
		return nil, fmt.Errorf("secret %q is not configured", s.Name)
	}

	typ, _ := m["type"].(string)
	factory, ok := secretTypes[typ]
	if !ok {
		return nil, fmt.Errorf("unknown secret type %q", typ)
	}

	value := factory()
	if err := decode(m, value); err != nil {
		return nil, fmt.Errorf("secret %q: %w", s.Name, err)
	}

	if err := value.check(); err != nil {
		return nil, fmt.Errorf("secret %q: %w", s.Name, err)
	}

	return value, nil
}

type typedSecret interface {
	check() error
}

var secretTypes = map[string]func() typedSecret{
	"aws_auth":   func() typedSecret { return &SecretAWS{} },
	"azure_auth": func() typedSecret { return &SecretAzure{} },
	"gcp_auth":   func() typedSecret { return &SecretGCP{} },
	"basic_auth": func() typedSecret { return &SecretBasicAuth{} },
	"token_auth": func() typedSecret { return &SecretTokenAuth{} },
}

type SecretAWS struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
}

func (s *SecretAWS) check() error {
	if s.AccessKeyID == "" || s.SecretAccessKey == "" {
		return errors.New("missing access_key_id or secret_access_key in AWS secret")
	}
	return nil
}

type SecretGCP struct {
	APIKey      string `json:"api_key"`
	Credentials string `json:"credentials"` // Credentials file as JSON.
}

func (s *SecretGCP) check() error {
	if s.APIKey == "" && s.Credentials == "" {
		return errors.New("missing api_key or credentials in GCP secret")
	}
	return nil
}

type SecretAzure struct {
	AccountName string `json:"account_name"`
	AccountKey  string `json:"account_key"`
}

func (s *SecretAzure) check() error {
	if s.AccountName == "" || s.AccountKey == "" {
		return errors.New("missing account_name or account_key in Azure secret")
	}
	return nil
}

type SecretBasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *SecretBasicAuth) check() error {
	if s.Username == "" || s.Password == "" {
		return errors.New("missing username or password in basic auth secret")
	}
	return nil
}

func (s *SecretBasicAuth) SetHeader(req *http.Request) error {
	req.SetBasicAuth(s.Username, s.Password)
	return nil
}

type SecretTokenAuth struct {
	Token string `json:"token"`
}

func (s *SecretTokenAuth) check() error {
	if s.Token == "" {
		return errors.New("missing token in token auth secret")
	}
	return nil
}

func (s *SecretTokenAuth) SetHeader(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+s.Token)
	return nil
}

// we use this one so we don't need duplicate tags on every struct
func decode(input any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  output,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
