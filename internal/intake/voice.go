package intake

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/reminex/client/internal/speech"
	"github.com/reminex/client/pkg/models"
	"github.com/reminex/client/pkg/utils"
)

// ListenAndApply records one utterance and merges what it says into the
// draft. target narrows the parse to one field; FieldAll takes everything.
func (f *Form) ListenAndApply(ctx context.Context, opts speech.Options, target Field) (string, []Field, error) {
	if !f.deps.Listener.Supported() {
		return "", nil, notice(KindCapability, msgNoSpeech, nil)
	}

	f.listening.Store(true)
	text, err := f.deps.Listener.ListenOnce(ctx, opts)
	f.listening.Store(false)
	if err != nil {
		return "", nil, speechNotice(err)
	}
	f.logger.Debug("transcript", zap.String("text", text))

	fields, err := f.Dictate(text, target)
	return text, fields, err
}

// Dictate applies a transcript recognised elsewhere (a browser or another
// device). It reports a degraded notice when nothing in it was usable.
func (f *Form) Dictate(text string, target Field) ([]Field, error) {
	fields := f.ApplyTranscript(text, target)
	if len(fields) == 0 {
		return nil, notice(KindDegraded, msgNothingRecognised, nil)
	}
	return fields, nil
}

func speechNotice(err error) *Notice {
	switch speech.ReasonOf(err) {
	case speech.ReasonUnsupported:
		return notice(KindCapability, msgNoSpeech, err)
	case speech.ReasonTimeout:
		return notice(KindDegraded, msgSpeechTimeout, err)
	case speech.ReasonCancelled:
		return notice(KindDegraded, msgSpeechCancelled, err)
	case speech.ReasonBusy:
		return notice(KindValidation, "Already listening", err)
	}
	return notice(KindCollaborator, msgSpeechFailed+": "+err.Error(), err)
}

// Words that carry field values rather than the product name.
var (
	dateLikeRe  = regexp.MustCompile(`\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}`)
	fillerWords = map[string]bool{
		"expires": true, "expiry": true, "expiring": true, "exp": true, "on": true,
		"food": true, "non": true, "non-food": true, "nonfood": true, "item": true,
		"kg": true, "kilo": true, "kilos": true, "g": true, "gram": true, "grams": true,
		"ml": true, "l": true, "liter": true, "liters": true, "litre": true, "litres": true,
		"piece": true, "pieces": true, "pcs": true, "price": true, "rupees": true, "dollars": true,
		"today": true, "tomorrow": true, "இன்று": true, "நாளை": true, "අද": true, "හෙට": true,
	}
)

// ApplyTranscript parses a dictated phrase and merges the recognised
// values. With FieldAll, the name is only filled when the draft has none.
func (f *Form) ApplyTranscript(text string, target Field) []Field {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	now := f.deps.Now()

	return f.update("voice", func(d *Draft) []Field {
		var touched []Field
		switch target {
		case FieldName:
			d.Name = text
			touched = append(touched, FieldName)

		case FieldExpiry:
			if iso, ok := utils.ParseSpokenDateToISOAt(text, now); ok {
				d.ExpiryDate = iso
				touched = append(touched, FieldExpiry)
			}

		case FieldCategory:
			if c, ok := utils.ParseCategoryFromText(text); ok {
				d.Category = models.Category(c)
				touched = append(touched, FieldCategory)
			}

		case FieldPrice:
			if n, ok := utils.ExtractFirstNumber(text); ok {
				d.Price = formatNumber(n)
				touched = append(touched, FieldPrice)
			}

		case FieldWeight, FieldUnit:
			if n, ok := utils.ExtractFirstNumber(text); ok {
				d.Weight = formatNumber(n)
				touched = append(touched, FieldWeight)
			}
			if u, ok := utils.ParseUnitFromText(text); ok {
				d.Unit = models.Unit(u)
				touched = append(touched, FieldUnit)
			}

		default:
			if iso, ok := utils.ParseSpokenDateToISOAt(text, now); ok {
				d.ExpiryDate = iso
				touched = append(touched, FieldExpiry)
			}
			if c, ok := utils.ParseCategoryFromText(text); ok {
				d.Category = models.Category(c)
				touched = append(touched, FieldCategory)
			}
			// A quantity needs both a number and a unit; numbers inside
			// dates don't count.
			rest := dateLikeRe.ReplaceAllString(text, " ")
			if u, ok := utils.ParseUnitFromText(rest); ok {
				if n, ok := utils.ExtractFirstNumber(rest); ok {
					d.Weight, d.Unit = formatNumber(n), models.Unit(u)
					touched = append(touched, FieldWeight, FieldUnit)
				}
			}
			if d.Name == "" {
				if name := nameFromTranscript(text); name != "" {
					d.Name = name
					touched = append(touched, FieldName)
				}
			}
		}
		return touched
	})
}

// nameFromTranscript drops numbers, dates and keyword tokens and keeps the
// rest as a product name.
func nameFromTranscript(text string) string {
	var keep []string
	for _, w := range strings.Fields(dateLikeRe.ReplaceAllString(text, " ")) {
		lw := strings.ToLower(strings.Trim(w, ".,;:!?"))
		if lw == "" || fillerWords[lw] || startsWithDigit(lw) {
			continue
		}
		keep = append(keep, strings.Trim(w, ".,;:!?"))
	}
	return strings.Join(keep, " ")
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
