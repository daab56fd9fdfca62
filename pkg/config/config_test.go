package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "mnemo")
	path := writeFile(t, "name: ${SAMPLE_NAME}\nport: 7\n")

	var s sample
	require.NoError(t, Load(path, &s))
	assert.Equal(t, "mnemo", s.Name)
	assert.Equal(t, 7, s.Port)
}

func TestLoadValidates(t *testing.T) {
	path := writeFile(t, "name: x\n")
	var s sample
	err := Load(path, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port is required")
}

func TestLoadMissingFile(t *testing.T) {
	var s sample
	assert.Error(t, Load(filepath.Join(t.TempDir(), "nope.yaml"), &s))
}

func TestLoadOptionalKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Port: 1}

	found, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, sample{Name: "default", Port: 1}, s)

	found, err = LoadOptional(writeFile(t, "name: file\n"), &s)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "file", s.Name)
	assert.Equal(t, 1, s.Port, "keys absent from the file keep their value")
}

func TestLoadOptionalBadYAML(t *testing.T) {
	var s sample
	_, err := LoadOptional(writeFile(t, "name: [\n"), &s)
	assert.Error(t, err)
}
