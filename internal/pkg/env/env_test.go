package env

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedMap(t *testing.T) {
	old := Env
	defer func() { Env = old }()

	t.Setenv("LABELFOX_TEST_KEY", "from-os")
	Env = map[string]string{"LABELFOX_TEST_KEY": "from-file"}
	assert.Equal(t, "from-file", GetEnv("LABELFOX_TEST_KEY", "def"))

	Env = map[string]string{}
	assert.Equal(t, "from-os", GetEnv("LABELFOX_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("LABELFOX_TEST_MISSING", "def"))
}

func TestGetInt(t *testing.T) {
	old := Env
	defer func() { Env = old }()

	Env = map[string]string{"WORKERS": "4", "BROKEN": "four"}
	assert.Equal(t, 4, GetInt("WORKERS", 1))
	assert.Equal(t, 1, GetInt("BROKEN", 1))
	assert.Equal(t, 2, GetInt("UNSET_WORKERS", 2))
}

func TestSetupEnvFileOptional(t *testing.T) {
	old := Env
	defer func() { Env = old }()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("ENV_FILE_OPTIONAL", "true")
	assert.NotPanics(t, SetupEnvFile)
	assert.NotNil(t, Env)
}
