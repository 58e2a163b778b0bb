package channel

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Per-channel settings ride in StatePortalConfig.ExtraConfig as a loose
// JSONB map; each adapter decodes the typed view it needs at construction.

// BrowserExtra configures the scriptable-browser adapter. Selectors live in
// configuration so per-state markup differences never become code branches.
type BrowserExtra struct {
	LoginURL            string `mapstructure:"login_url"`
	UploadURL           string `mapstructure:"upload_url"`
	ResultsURL          string `mapstructure:"results_url"`
	UsernameSelector    string `mapstructure:"username_selector"`
	PasswordSelector    string `mapstructure:"password_selector"`
	LoginButtonSelector string `mapstructure:"login_button_selector"`
	MFACodeSelector     string `mapstructure:"mfa_code_selector"`
	MFASubmitSelector   string `mapstructure:"mfa_submit_selector"`
	FileInputSelector   string `mapstructure:"file_input_selector"`
	SubmitSelector      string `mapstructure:"submit_selector"`
	ConfirmationSel     string `mapstructure:"confirmation_selector"`
	ResultsTableSel     string `mapstructure:"results_table_selector"`
	LoginErrorSelector  string `mapstructure:"login_error_selector"`
}

// SFTPExtra configures the shared-host SFTP adapter.
type SFTPExtra struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	RemoteDir string `mapstructure:"remote_dir"`
	InboxDir  string `mapstructure:"inbox_dir"`
}

// VendorPortalExtra configures the third-party aggregator adapter. The
// signatory fields parameterize the shared flow per state.
type VendorPortalExtra struct {
	BaseURL        string `mapstructure:"base_url"`
	LoginPath      string `mapstructure:"login_path"`
	UploadPath     string `mapstructure:"upload_path"`
	ResultsPath    string `mapstructure:"results_path"`
	SignatoryName  string `mapstructure:"signatory_name"`
	SignatoryTitle string `mapstructure:"signatory_title"`
	ContactEmail   string `mapstructure:"contact_email"`
}

func decodeExtra(raw map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return errors.Wrap(err, "invalid channel extra config")
	}
	return nil
}
