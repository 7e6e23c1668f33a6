package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/a-h/templ"
)

const resetSubject = "Reset your Root password"

// passwordResetEmail renders the HTML body of the reset email.
func passwordResetEmail(msg PasswordResetMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		link := templ.EscapeString(msg.ResetURL)
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
<h2>Reset your password</h2>
<p>We received a request to reset the password for your Root account.</p>
<p><a href="%s" style="background:#2563eb;color:#fff;padding:10px 16px;border-radius:6px;text-decoration:none;">Choose a new password</a></p>
<p>Or paste this link into your browser:<br><span style="word-break: break-all;">%s</span></p>
<p>This link expires in %s. If you did not ask for a reset, you can ignore this email.</p>
</body>
</html>
`, link, link, templ.EscapeString(humanDuration(msg.ExpiresIn)))
		return err
	})
}

// passwordResetText is the plain-text alternative of the reset email.
func passwordResetText(msg PasswordResetMessage) string {
	return fmt.Sprintf("We received a request to reset the password for your Root account.\r\n\r\n"+
		"Choose a new password here:\r\n%s\r\n\r\n"+
		"This link expires in %s. If you did not ask for a reset, you can ignore this email.\r\n",
		msg.ResetURL, humanDuration(msg.ExpiresIn))
}

func renderHTML(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", fmt.Errorf("rendering email: %w", err)
	}
	return buf.String(), nil
}

// humanDuration formats whole minutes or hours, e.g. "30 minutes".
func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return plural(int(d/time.Hour), "hour")
	}
	return plural(int(math.Ceil(d.Minutes())), "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
