package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
	"github.com/yeye296/Xserver-VPS-Renew/internal/renew"
)

// Reporter persists the per-run status artifacts: a machine-readable
// cache.json consumed informationally by the next run, and a rendered
// README.md status page. Both are written after the record has settled and
// are never read back for correctness.
type Reporter struct {
	cfg *config.ReportConfig
	log *logrus.Entry
}

// NewReporter creates a reporter writing to the configured paths.
func NewReporter(cfg *config.ReportConfig) *Reporter {
	return &Reporter{
		cfg: cfg,
		log: logrus.WithField("component", "report"),
	}
}

// Write persists both artifacts. Failures are logged, not escalated: the run
// outcome stands regardless of reporting.
func (r *Reporter) Write(rec *renew.RunRecord) {
	if err := r.writeCache(rec); err != nil {
		r.log.Errorf("Failed to write cache: %v", err)
	}
	if err := r.writeReadme(rec); err != nil {
		r.log.Errorf("Failed to write status page: %v", err)
	}
}

func (r *Reporter) writeCache(rec *renew.RunRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}
	return os.WriteFile(r.cfg.CachePath, data, 0o644)
}

func (r *Reporter) writeReadme(rec *renew.RunRecord) error {
	var b strings.Builder

	ts := time.Now().UTC().Format("2006-01-02 15:04:05")

	b.WriteString("# XServer VPS auto-renewal status\n\n")
	fmt.Fprintf(&b, "**Run time**: `%s UTC`<br>\n", ts)
	fmt.Fprintf(&b, "**VPS ID**: `%s`<br>\n", orUnknown(rec.VPSID))
	fmt.Fprintf(&b, "**Runner IP**: `%s`<br>\n", orUnknown(rec.RunnerIP))
	fmt.Fprintf(&b, "**Browser egress IP**: `%s`<br>\n\n---\n\n", orUnknown(rec.ExitIP))

	switch rec.Status {
	case renew.StatusSuccess:
		b.WriteString("## Renewal succeeded\n\n")
		fmt.Fprintf(&b, "- **New expiry**: `%s`\n", orUnknown(firstNonEmpty(rec.NewExpiry, rec.OldExpiry)))
	case renew.StatusUnexpired:
		b.WriteString("## Renewal window not open yet\n\n")
		fmt.Fprintf(&b, "- **Expiry**: `%s`\n", orUnknown(rec.OldExpiry))
	case renew.StatusNeedVerify:
		b.WriteString("## Email verification needed / code fetch failed\n\n")
		fmt.Fprintf(&b, "- **Reason**: %s\n", orUnknown(rec.Detail))
		b.WriteString("- Check: IMAP enabled on the mailbox, app password in use, correct IMAP host\n")
	case renew.StatusUnknown:
		b.WriteString("## Outcome unknown — manual review\n\n")
		fmt.Fprintf(&b, "- **Expiry**: `%s`\n", orUnknown(rec.OldExpiry))
		fmt.Fprintf(&b, "- **Detail**: %s\n", orUnknown(rec.Detail))
	default:
		b.WriteString("## Renewal failed\n\n")
		fmt.Fprintf(&b, "- **Expiry**: `%s`\n", orUnknown(rec.OldExpiry))
		fmt.Fprintf(&b, "- **Error**: %s\n", orUnknown(rec.Detail))
	}

	fmt.Fprintf(&b, "\n---\n\n*Last updated: %s UTC*\n", ts)

	return os.WriteFile(r.cfg.ReadmePath, []byte(b.String()), 0o644)
}

// Summary renders the one-line outcome message for the notification channel.
func Summary(rec *renew.RunRecord) string {
	switch rec.Status {
	case renew.StatusSuccess:
		return fmt.Sprintf("✅ Renewal succeeded. New expiry: %s",
			orUnknown(firstNonEmpty(rec.NewExpiry, rec.OldExpiry)))
	case renew.StatusUnexpired:
		return fmt.Sprintf("ℹ️ Renewal window not open yet. Expiry: %s", orUnknown(rec.OldExpiry))
	case renew.StatusNeedVerify:
		return fmt.Sprintf("🔐 Email verification problem: %s", orUnknown(rec.Detail))
	case renew.StatusUnknown:
		return fmt.Sprintf("⚠️ Renewal outcome unknown, please review: %s", orUnknown(rec.Detail))
	default:
		return fmt.Sprintf("❌ Renewal failed: %s", orUnknown(rec.Detail))
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
