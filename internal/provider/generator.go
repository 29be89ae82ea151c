package provider

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	connectiondomain "github.com/saurav5380/apicompass/internal/connection/domain"
	"github.com/saurav5380/apicompass/internal/provider/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

// dailyQuantity derives a stable per-day quantity from the connection,
// metric and calendar date so replayed polls produce identical samples.
// The range is fixed per metric; a non-positive range panics.
func dailyQuantity(conn *connectiondomain.Connection, metric string, minimum, maximum int64, ts time.Time) decimal.Decimal {
	if minimum >= maximum {
		panic(fmt.Sprintf("provider: quantity range [%d, %d] for %s is not positive", minimum, maximum, metric))
	}
	seed := fmt.Sprintf("%d:%s:%s", conn.ID, metric, ts.UTC().Format("2006-01-02"))
	sum := sha256.Sum256([]byte(seed))
	digest := new(big.Int).SetBytes(sum[:])
	span := big.NewInt(maximum - minimum + 1)
	value := minimum + new(big.Int).Mod(digest, span).Int64()
	return decimal.NewFromInt(value)
}

func openaiUsageSamples(conn *connectiondomain.Connection, ts time.Time) []usagedomain.UsageSample {
	promptTokens := dailyQuantity(conn, "openai_prompt_tokens", 150_000, 750_000, ts)
	completionTokens := dailyQuantity(conn, "openai_completion_tokens", 80_000, 600_000, ts)
	total := promptTokens.Add(completionTokens)
	unitCost := decimal.NewFromFloat(0.000002)
	connID := conn.ID
	return []usagedomain.UsageSample{{
		OrgID:        conn.OrgID,
		ConnectionID: &connID,
		Provider:     conn.Provider,
		Environment:  conn.Environment,
		Metric:       "openai:tokens",
		Unit:         "token",
		Quantity:     total,
		UnitCost:     &unitCost,
		Currency:     "usd",
		TS:           ts,
		Source:       "poll-openai",
		Metadata: map[string]any{
			"model":                "gpt-4o-mini",
			"requests":             total.Div(decimal.NewFromInt(1000)).IntPart(),
			"month_to_date_tokens": total.IntPart(),
		},
	}}
}

func twilioUsageSamples(conn *connectiondomain.Connection, ts time.Time) []usagedomain.UsageSample {
	smsSegments := dailyQuantity(conn, "twilio_sms_segments", 150, 2500, ts)
	voiceMinutes := dailyQuantity(conn, "twilio_voice_minutes", 25, 480, ts)
	smsCost := decimal.NewFromFloat(0.0075)
	voiceCost := decimal.NewFromFloat(0.015)
	connID := conn.ID
	sms := usagedomain.UsageSample{
		OrgID:        conn.OrgID,
		ConnectionID: &connID,
		Provider:     conn.Provider,
		Environment:  conn.Environment,
		Metric:       "twilio:sms_segments",
		Unit:         "segment",
		Quantity:     smsSegments,
		UnitCost:     &smsCost,
		Currency:     "usd",
		TS:           ts,
		Source:       "poll-twilio",
		Metadata: map[string]any{
			"product":  "sms",
			"messages": smsSegments.IntPart(),
		},
	}
	voice := usagedomain.UsageSample{
		OrgID:        conn.OrgID,
		ConnectionID: &connID,
		Provider:     conn.Provider,
		Environment:  conn.Environment,
		Metric:       "twilio:voice_minutes",
		Unit:         "minute",
		Quantity:     voiceMinutes,
		UnitCost:     &voiceCost,
		Currency:     "usd",
		TS:           ts,
		Source:       "poll-twilio",
		Metadata: map[string]any{
			"product": "voice",
			"calls":   voiceMinutes.IntPart() / 5,
		},
	}
	return []usagedomain.UsageSample{sms, voice}
}

func sendgridUsageSamples(conn *connectiondomain.Connection, ts time.Time) []usagedomain.UsageSample {
	planQuota := int64(100_000)
	if raw, ok := conn.Metadata["plan_quota"]; ok {
		switch v := raw.(type) {
		case float64:
			planQuota = int64(v)
		case int64:
			planQuota = v
		case int:
			planQuota = int64(v)
		}
		if planQuota <= 0 {
			planQuota = 100_000
		}
	}
	emailsSent := dailyQuantity(conn, "sendgrid_emails", 1_000, 8_000, ts)
	totalSent := emailsSent.IntPart()
	if totalSent > planQuota {
		totalSent = planQuota
	}
	percent := decimal.NewFromInt(totalSent).
		Div(decimal.NewFromInt(planQuota)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	unitCost := decimal.NewFromFloat(0.0006)
	connID := conn.ID
	return []usagedomain.UsageSample{{
		OrgID:        conn.OrgID,
		ConnectionID: &connID,
		Provider:     conn.Provider,
		Environment:  conn.Environment,
		Metric:       "sendgrid:emails_sent",
		Unit:         "email",
		Quantity:     emailsSent,
		UnitCost:     &unitCost,
		Currency:     "usd",
		TS:           ts,
		Source:       "poll-sendgrid",
		Metadata: map[string]any{
			"plan_quota":            planQuota,
			"plan_consumed_percent": percent.InexactFloat64(),
			"deliveries":            emailsSent.Mul(decimal.NewFromFloat(0.97)).IntPart(),
			"bounces":               emailsSent.Mul(decimal.NewFromFloat(0.01)).IntPart(),
		},
	}}
}

// BuildSamples dispatches to the provider's generator; unknown providers
// yield no samples.
func BuildSamples(conn *connectiondomain.Connection, ts time.Time) []usagedomain.UsageSample {
	switch conn.Provider {
	case usagedomain.ProviderOpenAI:
		return openaiUsageSamples(conn, ts)
	case usagedomain.ProviderTwilio:
		return twilioUsageSamples(conn, ts)
	case usagedomain.ProviderSendgrid:
		return sendgridUsageSamples(conn, ts)
	default:
		return nil
	}
}

// CheckSimulatedStatus honors the simulate_status metadata hook used to
// exercise the retry path without a real provider outage.
func CheckSimulatedStatus(conn *connectiondomain.Connection) error {
	raw, ok := conn.Metadata["simulate_status"]
	if !ok || raw == nil {
		return nil
	}
	var status int
	switch v := raw.(type) {
	case float64:
		status = int(v)
	case int64:
		status = int(v)
	case int:
		status = v
	case string:
		parsed, err := parseStatus(v)
		if err != nil {
			return domain.NewAPIError(conn.Provider, conn.ID, 400, "invalid simulate_status")
		}
		status = parsed
	default:
		return domain.NewAPIError(conn.Provider, conn.ID, 400, "invalid simulate_status")
	}
	if status == 429 || status >= 500 {
		return domain.NewRetryableError(conn.Provider, conn.ID, status, "transient provider error")
	}
	if status >= 400 {
		return domain.NewAPIError(conn.Provider, conn.ID, status, "provider rejected request")
	}
	return nil
}

func parseStatus(s string) (int, error) {
	var status int
	if _, err := fmt.Sscanf(s, "%d", &status); err != nil {
		return 0, err
	}
	return status, nil
}
