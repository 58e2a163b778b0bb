package conf

/*
   Package conf wraps viper for the WOTC app. Local environments read a
   local.env configuration file; deployed environments rely on real
   environment variables. Keys found in the environment but not in the
   config file are copied into conf so repeated lookups avoid OS calls.

   Assumptions:
   1. The configuration file is an env file.
   2. Once loaded, the configuration stays immutable for the uptime of the
      application (the exception is test, via SetEnv/UnsetEnv).
*/

import (
	"os"
	"reflect"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// An instance of the viper struct containing the conf information. Only made
// accessible through public functions GetEnv, SetEnv, etc.
var envVars viper.Viper

const (
	configgood    uint8 = 0
	configbad     uint8 = 1
	noconfigfound uint8 = 2
)

var state uint8 = configgood

func setup(dir string) *viper.Viper {
	var v = viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	// Viper is lazy, do the read and parse of the config file
	if err := v.ReadInConfig(); err != nil {
		state = configbad
	}

	return v
}

func init() {
	var locationSlice = [2]string{
		"/go/src/github.com/wotcworks/wotc-app/shared_files/decrypted",
		"/etc/wotc",
	}

	if success, loc := findEnv(locationSlice[:]); success {
		envVars = *setup(loc)
	} else {
		state = noconfigfound
	}
}

func findEnv(location []string) (bool, string) {
	if _, err := os.Stat(location[0] + "/local.env"); err == nil {
		return true, location[0]
	}

	if len(location) == 1 {
		return false, ""
	}

	return findEnv(location[1:])
}

// GetEnv retrieves the value stored in conf. If it does not exist, the
// process environment is consulted; "" is returned when neither has it.
func GetEnv(key string) string {
	if state == configgood {
		var value = envVars.GetString(key)

		if value == "" {
			var b bool
			value, b = os.LookupEnv(key)
			if b {
				test := &testing.T{}
				var _ = SetEnv(test, key, value)
			}
		}

		return value
	}

	return os.Getenv(key)
}

// LookupEnv augments os.LookupEnv to look in the viper struct first.
func LookupEnv(key string) (string, bool) {
	if state == configgood {
		if value := envVars.Get(key); value != nil && value != "" {
			return value.(string), true
		}

		if v, exist := os.LookupEnv(key); exist {
			test := &testing.T{}
			var _ = SetEnv(test, key, v)
			return v, exist
		}

		return "", false
	}

	return os.LookupEnv(key)
}

// SetEnv adds key values into conf. This function should only be used either
// in this package itself or testing. The protect parameter is *testing.T to
// ensure developers knowingly use it in the appropriate scope.
func SetEnv(protect *testing.T, key string, value string) error {
	var err error

	if state == configgood {
		envVars.Set(key, value)
	} else {
		err = os.Setenv(key, value)
	}

	return err
}

// UnsetEnv "unsets" a variable. Like SetEnv, testing scope only.
func UnsetEnv(protect *testing.T, key string) error {
	if state == configgood {
		envVars.Set(key, "")
	}

	return os.Unsetenv(key)
}

// Checkout populates the given struct pointer from conf. Fields are matched
// by their `conf` tag; `conf_default` supplies a fallback when the key is
// unset. Supported field types are string, int, int32, int64 and bool.
func Checkout(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return errors.New("conf.Checkout requires a pointer to a struct")
	}

	elem := rv.Elem()
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Type().Field(i)
		key, ok := field.Tag.Lookup("conf")
		if !ok {
			continue
		}

		raw := GetEnv(key)
		if raw == "" {
			raw = field.Tag.Get("conf_default")
		}
		if raw == "" {
			continue
		}

		target := elem.Field(i)
		if !target.CanSet() {
			continue
		}

		switch target.Kind() {
		case reflect.String:
			target.SetString(raw)
		case reflect.Int, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "conf: %s is not an integer", key)
			}
			target.SetInt(n)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return errors.Wrapf(err, "conf: %s is not a bool", key)
			}
			target.SetBool(b)
		default:
			return errors.Errorf("conf: unsupported field type for %s", key)
		}
	}

	return nil
}
