// Package loader reads the inventory and todo YAML files into typed records.
package loader

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/eniac111/mla/internal/types"
)

const defaultSSHPort = 22

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		validateInst = validator.New()
	})
	return validateInst
}

// hostRecord is one entry under the inventory's hosts mapping.
type hostRecord struct {
	Address       string `yaml:"ssh_address" validate:"required,hostname_rfc1123|ip"`
	Port          int    `yaml:"ssh_port" validate:"omitempty,min=1,max=65535"`
	User          string `yaml:"ssh_user" validate:"required"`
	Password      string `yaml:"ssh_password" validate:"required_without=KeyFile,excluded_with=KeyFile"`
	KeyFile       string `yaml:"ssh_key_file" validate:"required_without=Password"`
	KeyPassphrase string `yaml:"ssh_key_passphrase" validate:"excluded_without=KeyFile"`
	SudoPassword  string `yaml:"sudo_password"`
}

type inventoryDocument struct {
	Hosts yaml.Node `yaml:"hosts"`
}

// LoadInventory reads the inventory file at path. Malformed host entries are
// logged and skipped; a missing or undecodable file, or one without any usable
// host, is an error.
func LoadInventory(path string, log zerolog.Logger) (types.Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("No such file")
		return types.Inventory{}, &ParseError{Path: path, Err: err}
	}

	var doc inventoryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		log.Error().Err(err).Str("path", path).Msg("An error occurred when loading the inventory file.")
		return types.Inventory{}, &ParseError{Path: path, Err: err}
	}
	if doc.Hosts.Kind != yaml.MappingNode {
		return types.Inventory{}, &ValidationError{Field: "hosts", Message: "must be a mapping of hostname to connection settings"}
	}

	var inv types.Inventory
	seen := make(map[string]struct{})
	for i := 0; i+1 < len(doc.Hosts.Content); i += 2 {
		nameNode, body := doc.Hosts.Content[i], doc.Hosts.Content[i+1]
		name := nameNode.Value
		hlog := log.With().Str("host", name).Int("line", nameNode.Line).Logger()

		if _, dup := seen[name]; dup {
			hlog.Error().Msg("Duplicate host entry, skipping.")
			continue
		}
		seen[name] = struct{}{}

		host, err := decodeHost(name, body)
		if err != nil {
			hlog.Error().Err(err).Msg("Invalid host entry, skipping.")
			continue
		}

		hlog.Info().Msgf("Target host: %s", name)
		inv.Hosts = append(inv.Hosts, host)
	}

	if len(inv.Hosts) == 0 {
		return types.Inventory{}, &ValidationError{Field: "hosts", Message: "no usable host declared"}
	}
	return inv, nil
}

func decodeHost(name string, body *yaml.Node) (types.Host, error) {
	var rec hostRecord
	if err := body.Decode(&rec); err != nil {
		return types.Host{}, err
	}
	if err := validatorInstance().Struct(rec); err != nil {
		return types.Host{}, describeValidation(err)
	}

	host := types.Host{
		Name:         name,
		Address:      rec.Address,
		Port:         rec.Port,
		User:         rec.User,
		SudoPassword: rec.SudoPassword,
	}
	if host.Port == 0 {
		host.Port = defaultSSHPort
	}
	if rec.KeyFile != "" {
		host.Auth = types.AuthKey
		host.KeyFile = rec.KeyFile
		host.KeyPassphrase = rec.KeyPassphrase
	} else {
		host.Auth = types.AuthPassword
		host.Password = rec.Password
	}
	return host, nil
}

// LoadTodos reads the ordered todo list at path.
func LoadTodos(path string, log zerolog.Logger) ([]types.Todo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("No such file")
		return nil, &ParseError{Path: path, Err: err}
	}

	var todos []types.Todo
	if err := yaml.Unmarshal(data, &todos); err != nil {
		log.Error().Err(err).Str("path", path).Msg("An error occurred when loading the todos file.")
		return nil, &ParseError{Path: path, Err: err}
	}
	if len(todos) == 0 {
		return nil, &ValidationError{Field: "todos", Message: "no todo declared"}
	}

	for i, todo := range todos {
		field := fmt.Sprintf("todos[%d]", i)
		if strings.TrimSpace(todo.Module) == "" {
			return nil, &ValidationError{Field: field + ".module", Message: "is required"}
		}
		if k := todo.Params.Kind; k != 0 && k != yaml.MappingNode {
			return nil, &ValidationError{Field: field + ".params", Message: "must be a mapping"}
		}
	}

	log.Info().Int("count", len(todos)).Msg("Todo loaded successfully.")
	return todos, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", yamlKey(fe.StructField()), fe.Tag()))
	}
	return &ValidationError{Message: strings.Join(msgs, "; ")}
}

func yamlKey(field string) string {
	switch field {
	case "Address":
		return "ssh_address"
	case "Port":
		return "ssh_port"
	case "User":
		return "ssh_user"
	case "Password":
		return "ssh_password"
	case "KeyFile":
		return "ssh_key_file"
	case "KeyPassphrase":
		return "ssh_key_passphrase"
	default:
		return field
	}
}
