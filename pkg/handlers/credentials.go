package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/convergerun/converge/pkg"
	"github.com/convergerun/converge/pkg/common"
)

// CredentialsInput are the parameters for the credentials task type.
type CredentialsInput struct {
	Path string `mapstructure:"path"`
	// Values are written verbatim; Generate names keys that receive a random
	// secret on first creation and keep their existing value afterwards.
	Values   map[string]interface{} `mapstructure:"values"`
	Generate []string               `mapstructure:"generate"`
	Owner    string                 `mapstructure:"owner"`
	Mode     string                 `mapstructure:"mode"`
	FactName string                 `mapstructure:"fact_name"`
}

func (i *CredentialsInput) Validate() error {
	if i.Path == "" {
		return fmt.Errorf("credentials requires 'path'")
	}
	if len(i.Values) == 0 && len(i.Generate) == 0 {
		return fmt.Errorf("credentials requires 'values' or 'generate'")
	}
	for _, key := range i.Generate {
		if _, clash := i.Values[key]; clash {
			return fmt.Errorf("key %q is both generated and given a value", key)
		}
	}
	return nil
}

func (i *CredentialsInput) mode() string {
	if i.Mode != "" {
		return i.Mode
	}
	return "0600"
}

func (i *CredentialsInput) factName() string {
	if i.FactName != "" {
		return i.FactName
	}
	return "credentials"
}

// CredentialsHandler converges a YAML secrets file: fixed values are kept in
// sync, generated secrets are minted once and then preserved across runs.
// The parsed mapping is published as a fact; secret values never appear in
// probe details or logs.
type CredentialsHandler struct{}

func (h *CredentialsHandler) existing(closure *pkg.Closure, path string) (map[string]interface{}, error) {
	data, err := closure.Conn.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var parsed map[string]interface{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}
	return parsed, nil
}

// missingKeys returns the keys whose stored value is absent or, for fixed
// values, differs from the desired value.
func (h *CredentialsHandler) missingKeys(input *CredentialsInput, current map[string]interface{}) []string {
	var missing []string
	for key, want := range input.Values {
		if have, ok := current[key]; !ok || fmt.Sprintf("%v", have) != fmt.Sprintf("%v", want) {
			missing = append(missing, key)
		}
	}
	for _, key := range input.Generate {
		if _, ok := current[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

func (h *CredentialsHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input CredentialsInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	current, err := h.existing(closure, input.Path)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return &pkg.StateDelta{InSync: false, Detail: "will create"}, nil
	}
	if missing := h.missingKeys(&input, current); len(missing) > 0 {
		return &pkg.StateDelta{InSync: false, Detail: fmt.Sprintf("will set %s", strings.Join(missing, ", "))}, nil
	}
	return &pkg.StateDelta{InSync: true}, nil
}

func (h *CredentialsHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input CredentialsInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	current, err := h.existing(closure, input.Path)
	if err != nil {
		return nil, err
	}
	merged := common.CopyMap(current)
	if merged == nil {
		merged = make(map[string]interface{})
	}
	for key, value := range input.Values {
		merged[key] = value
	}
	var minted []string
	for _, key := range input.Generate {
		if _, ok := merged[key]; !ok {
			secret, serr := generateSecret()
			if serr != nil {
				return nil, serr
			}
			merged[key] = secret
			minted = append(minted, key)
		}
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize credentials: %w", err)
	}
	if err := closure.Conn.WriteFile(input.Path, string(out), input.Owner, input.mode()); err != nil {
		return nil, err
	}

	detail := "updated"
	if len(minted) > 0 {
		sort.Strings(minted)
		detail = fmt.Sprintf("generated %s", strings.Join(minted, ", "))
	}
	return &pkg.ApplyOutcome{
		Changed: true,
		Detail:  detail,
		Facts:   map[string]interface{}{input.factName(): merged},
	}, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func init() {
	pkg.RegisterHandler("credentials", &CredentialsHandler{})
}
