package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvFallsBackToProcessEnv(t *testing.T) {
	assert.Nil(t, SetEnv(t, "WOTC_CONF_TEST_KEY", "portal"))
	assert.Equal(t, "portal", GetEnv("WOTC_CONF_TEST_KEY"))
	assert.Nil(t, UnsetEnv(t, "WOTC_CONF_TEST_KEY"))
	assert.Equal(t, "", GetEnv("WOTC_CONF_TEST_KEY"))
}

func TestLookupEnv(t *testing.T) {
	_, found := LookupEnv("WOTC_CONF_TEST_MISSING")
	assert.False(t, found)

	assert.Nil(t, SetEnv(t, "WOTC_CONF_TEST_PRESENT", "tx"))
	v, found := LookupEnv("WOTC_CONF_TEST_PRESENT")
	assert.True(t, found)
	assert.Equal(t, "tx", v)
	assert.Nil(t, UnsetEnv(t, "WOTC_CONF_TEST_PRESENT"))
}

func TestCheckout(t *testing.T) {
	type cfg struct {
		URL      string `conf:"WOTC_CONF_TEST_URL"`
		Retries  int    `conf:"WOTC_CONF_TEST_RETRIES" conf_default:"3"`
		Verbose  bool   `conf:"WOTC_CONF_TEST_VERBOSE" conf_default:"true"`
		Untagged string
	}

	assert.Nil(t, SetEnv(t, "WOTC_CONF_TEST_URL", "sftp.example.gov"))
	defer func() { assert.Nil(t, UnsetEnv(t, "WOTC_CONF_TEST_URL")) }()

	var c cfg
	assert.Nil(t, Checkout(&c))
	assert.Equal(t, "sftp.example.gov", c.URL)
	assert.Equal(t, 3, c.Retries)
	assert.True(t, c.Verbose)
	assert.Empty(t, c.Untagged)
}

func TestCheckoutRequiresStructPointer(t *testing.T) {
	var n int
	assert.Error(t, Checkout(n))
	assert.Error(t, Checkout(&n))
}
