// Package usecase contains application business logic: the security check
// pipeline, the focus session controller, the deadline monitor and the
// handling of page probe reports.
package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// newAlert stamps an alert with a fresh ID and creation time.
func newAlert(kind domain.AlertKind, title, message, url string) domain.Alert {
	return domain.Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		URL:       url,
		CreatedAt: time.Now(),
	}
}

func unsafeURLAlert(url string) domain.Alert {
	return newAlert(domain.AlertUnsafeURL, "Security Warning", "This site may be unsafe!", url)
}

func phishingAlert(url, brand string) domain.Alert {
	msg := "This domain appears to be a phishing attempt!"
	if brand != "" {
		msg = fmt.Sprintf("This domain appears to be a phishing attempt imitating %s!", brand)
	}
	return newAlert(domain.AlertPhishing, "Phishing Warning", msg, url)
}

func insecureTransportAlert(url string) domain.Alert {
	return newAlert(domain.AlertInsecureTransport, "Security Warning", "This site is not using HTTPS!", url)
}

func trackingCookiesAlert(url string) domain.Alert {
	return newAlert(domain.AlertTrackingCookies, "Cookie Warning", "This site is setting many tracking cookies!", url)
}

func focusWarningAlert(url string) domain.Alert {
	return newAlert(domain.AlertFocusWarning, "Focus Mode Warning", "You are visiting an HTTP site during focus mode!", url)
}

func sessionCompleteAlert() domain.Alert {
	return newAlert(domain.AlertSessionComplete, "Focus Session Complete", "Your focus session has ended!", "")
}

func deadlineAlert(minutes int) domain.Alert {
	return newAlert(domain.AlertDeadlineApproaching, "Deadline Approaching",
		fmt.Sprintf("Task deadline is in %d minutes!", minutes), "")
}

func sensitiveFormAlert(url string, fields int) domain.Alert {
	return newAlert(domain.AlertSensitiveForm, "Form Security Warning",
		fmt.Sprintf("This HTTP page has %d sensitive form field(s); data may be sent unencrypted.", fields), url)
}
