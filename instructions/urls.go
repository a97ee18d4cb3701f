package instructions

import (
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleConsoleBase = "https://console.cloud.google.com"

// googleConsole builds links into the Google Cloud console.
type googleConsole struct {
	projectID string
}

func (g googleConsole) newProjectURL() string {
	return googleConsoleBase + "/projectcreate"
}

func (g googleConsole) consentScreenURL(appName, supportEmail string) string {
	q := url.Values{}
	if g.projectID != "" {
		q.Set("project", g.projectID)
	}
	if supportEmail != "" {
		q.Set("supportEmail", supportEmail)
	}
	if appName != "" {
		q.Set("applicationName", appName)
	}
	u := googleConsoleBase + "/apis/credentials/consent"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (g googleConsole) credentialsURL() string {
	u := googleConsoleBase + "/apis/credentials/oauthclient"
	if g.projectID != "" {
		u += "?project=" + url.QueryEscape(g.projectID)
	}
	return u
}

const searchConsoleURL = "https://search.google.com/search-console/welcome"

// testAuthURL is the Google authorization URL a developer can open to check
// the client once its id is filled in. Query parameters are sorted, so the
// result is stable for the same inputs.
func testAuthURL(redirectURI string, scopes []string) string {
	cfg := oauth2.Config{
		ClientID:    "YOUR_CLIENT_ID",
		RedirectURL: redirectURI,
		Scopes:      scopes,
		Endpoint:    google.Endpoint,
	}
	return cfg.AuthCodeURL("state", oauth2.AccessTypeOffline)
}

func awsConsoleURL(service, region, fragment string) string {
	return fmt.Sprintf("https://console.aws.amazon.com/%s/home?region=%s#%s", service, region, fragment)
}
