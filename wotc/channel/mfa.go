package channel

import (
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/vault"
)

// totpCode derives the current six-digit code from the decrypted shared
// secret. Only TOTP can be answered unattended; SMS and email factors
// require a human and are surfaced as MFA failures.
func totpCode(creds vault.Credentials, at time.Time) (string, error) {
	if creds.MFAType != models.MFATypeTOTP {
		return "", newError(KindMFA, "mfa",
			errf("mfa type %q cannot be completed without operator input", creds.MFAType))
	}
	if creds.MFASecret == "" {
		return "", newError(KindMFA, "mfa", errf("portal requires totp but no shared secret is stored"))
	}

	code, err := totp.GenerateCode(creds.MFASecret, at)
	if err != nil {
		return "", newError(KindMFA, "mfa", err)
	}
	return code, nil
}

// challengeAnswer looks up the stored answer for a scraped challenge
// question. A question with no stored answer is an MFA failure, not a guess.
func challengeAnswer(creds vault.Credentials, question string) (string, error) {
	if answer, ok := creds.ChallengeAnswers[question]; ok {
		return answer, nil
	}
	return "", newError(KindMFA, "mfa", errf("no stored answer for challenge question %q", question))
}
