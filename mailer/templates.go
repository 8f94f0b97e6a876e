package mailer

import (
	"fmt"
	"html"
)

// The bodies are deliberately plain: transactional code emails render in
// clients that strip most styling, and the code must survive copy-paste.

func renderVerification(appName, name, code string) string {
	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + html.EscapeString(name)
	}
	return fmt.Sprintf(`<html><body>
<p>%s,</p>
<p>Your %s email confirmation code is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">%s</p>
<p>The code expires in 10 minutes. If you did not request it, ignore this email.</p>
</body></html>`, greeting, html.EscapeString(appName), html.EscapeString(code))
}

func renderReset(appName, code string) string {
	return fmt.Sprintf(`<html><body>
<p>A password reset was requested for your %s account.</p>
<p>Your reset code is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">%s</p>
<p>The code expires in 10 minutes. If you did not request a reset, your
password is unchanged and you can ignore this email.</p>
</body></html>`, html.EscapeString(appName), html.EscapeString(code))
}

func renderTwoFactor(appName, code string) string {
	return fmt.Sprintf(`<html><body>
<p>Your %s sign-in code is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">%s</p>
<p>The code expires in 5 minutes. If you did not try to sign in, change
your password now.</p>
</body></html>`, html.EscapeString(appName), html.EscapeString(code))
}
