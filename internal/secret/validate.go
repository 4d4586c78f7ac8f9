package secret

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"
)

// Type is the kind of credential a secret holds.
type Type string

// Supported secret types.
const (
	TypeSSH        Type = "ssh"
	TypeKubeconfig Type = "kubeconfig"
)

// maxFileNameLength bounds stored file names.
const maxFileNameLength = 255

// kubeconfig is the subset of a kubeconfig file that is checked.
type kubeconfig struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Clusters   []struct {
		Name    string `yaml:"name"`
		Cluster struct {
			Server string `yaml:"server"`
		} `yaml:"cluster"`
	} `yaml:"clusters"`
}

// ValidateSSHKey checks that content is a PEM or OpenSSH private key.
// Passphrase-protected keys are accepted.
func ValidateSSHKey(content []byte) error {
	_, err := ssh.ParseRawPrivateKey(content)
	if err == nil {
		return nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil
	}
	return fmt.Errorf("%w: not an SSH private key: %w", ErrInvalidContent, err)
}

// ValidateKubeconfig checks that content is a kubeconfig with at least one
// cluster that names a server.
func ValidateKubeconfig(content []byte) error {
	var kc kubeconfig
	if err := yaml.Unmarshal(content, &kc); err != nil {
		return fmt.Errorf("%w: parsing kubeconfig: %w", ErrInvalidContent, err)
	}
	if kc.Kind != "Config" {
		return fmt.Errorf("%w: kubeconfig kind must be Config, got %q", ErrInvalidContent, kc.Kind)
	}
	if len(kc.Clusters) == 0 {
		return fmt.Errorf("%w: kubeconfig has no clusters", ErrInvalidContent)
	}
	for _, c := range kc.Clusters {
		if c.Cluster.Server == "" {
			return fmt.Errorf("%w: cluster %q has no server", ErrInvalidContent, c.Name)
		}
	}
	return nil
}

// Validate checks content against the declared type.
func Validate(t Type, content []byte) error {
	switch t {
	case TypeSSH:
		return ValidateSSHKey(content)
	case TypeKubeconfig:
		return ValidateKubeconfig(content)
	default:
		return fmt.Errorf("%w: unknown secret type %q", ErrInvalidType, t)
	}
}

// DetectType guesses the type of content, preferring SSH.
func DetectType(content []byte) (Type, error) {
	if ValidateSSHKey(content) == nil {
		return TypeSSH, nil
	}
	if ValidateKubeconfig(content) == nil {
		return TypeKubeconfig, nil
	}
	return "", fmt.Errorf("%w: neither an SSH key nor a kubeconfig", ErrInvalidContent)
}

// CleanFileName validates a client-supplied file name and returns it
// unchanged. Anything but a plain base name is rejected.
func CleanFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "", name == ".", name == "..":
		return "", fmt.Errorf("%w: file name is required", ErrInvalidFileName)
	case len(name) > maxFileNameLength:
		return "", fmt.Errorf("%w: file name too long", ErrInvalidFileName)
	case strings.ContainsAny(name, `/\`) || filepath.Base(name) != name:
		return "", fmt.Errorf("%w: file name must not contain path separators", ErrInvalidFileName)
	case strings.HasPrefix(name, "."):
		return "", fmt.Errorf("%w: hidden file names are not allowed", ErrInvalidFileName)
	}
	return name, nil
}
