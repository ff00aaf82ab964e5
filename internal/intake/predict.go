package intake

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/reminex/client/pkg/utils"
)

// PredictFromImage sends the selected local picture to the spoilage model
// and writes the estimated expiry date. The returned summary
// ("Condition: ripe · ~3 day(s) left") is advisory text only.
func (f *Form) PredictFromImage(ctx context.Context) (string, error) {
	img := f.Draft().ImageFile
	if img == nil {
		return "", notice(KindValidation, msgNoImage, nil)
	}

	pred, err := f.deps.Backend.PredictImage(ctx, *img)
	if err != nil {
		f.logger.Info("prediction failed", zap.Error(err))
		return "", collaboratorNotice(err, msgPredictFailed)
	}
	expiry := utils.DateOnly(pred.ExpiryDateISO)
	if !pred.Success || expiry == "" {
		msg := pred.Message
		if msg == "" {
			msg = msgPredictFailed
		}
		return "", notice(KindCollaborator, msg, nil)
	}

	f.update("predict", func(d *Draft) []Field {
		d.ExpiryDate = expiry
		return []Field{FieldExpiry}
	})

	condition := pred.Condition
	if condition == "" {
		condition = "unknown"
	}
	days := strconv.FormatFloat(pred.Days, 'f', -1, 64)
	return fmt.Sprintf("Condition: %s · ~%s day(s) left", condition, days), nil
}
