package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wotcworks/wotc-app/wotc/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		portal *models.StatePortalConfig
		want   interface{}
	}{
		{
			"browser",
			&models.StatePortalConfig{
				ChannelType: models.ChannelBrowser,
				ExtraConfig: map[string]interface{}{
					"login_url":             "https://portal.state.example/login",
					"username_selector":     "#user",
					"password_selector":     "#pass",
					"login_button_selector": "#go",
				},
			},
			&BrowserAdapter{},
		},
		{
			"sftp",
			sftpPortal(),
			&SFTPAdapter{},
		},
		{
			"vendor portal",
			vendorPortal("https://vendor.example"),
			&VendorPortalAdapter{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := Resolve(tt.portal)
			require.NoError(t, err)
			assert.IsType(t, tt.want, adapter)
		})
	}
}

func TestResolveUnknownChannelType(t *testing.T) {
	_, err := Resolve(&models.StatePortalConfig{ChannelType: "carrier-pigeon"})
	require.Error(t, err)
	assert.Equal(t, KindStructural, Classify(err))
}

func TestDecodeExtraWeakTyping(t *testing.T) {
	// JSONB numbers arrive as float64; the decoder must still fill int
	// fields.
	var extra SFTPExtra
	err := decodeExtra(map[string]interface{}{
		"host": "sftp.example.gov",
		"port": float64(2222),
	}, &extra)
	require.NoError(t, err)
	assert.Equal(t, 2222, extra.Port)
}

func TestNewBrowserAdapterRequiresLoginSelectors(t *testing.T) {
	_, err := NewBrowserAdapter(&models.StatePortalConfig{
		ChannelType: models.ChannelBrowser,
		ExtraConfig: map[string]interface{}{"login_url": "https://portal.state.example"},
	})
	require.Error(t, err)
	assert.Equal(t, KindStructural, Classify(err))
}

func TestNewBrowserAdapterFallsBackToPortalURL(t *testing.T) {
	adapter, err := NewBrowserAdapter(&models.StatePortalConfig{
		ChannelType: models.ChannelBrowser,
		PortalURL:   "https://portal.state.example/login",
		ExtraConfig: map[string]interface{}{
			"username_selector":     "#user",
			"password_selector":     "#pass",
			"login_button_selector": "#go",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://portal.state.example/login", adapter.extra.LoginURL)
}
