package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	connectiondomain "github.com/saurav5380/apicompass/internal/connection/domain"
	"github.com/saurav5380/apicompass/internal/provider/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

// testNode is shared across the file so every generated ID is distinct;
// a fresh node per connection can repeat IDs within one millisecond.
var testNode = func() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}()

func testConnection(t *testing.T, provider usagedomain.Provider) *connectiondomain.Connection {
	t.Helper()
	node := testNode
	return &connectiondomain.Connection{
		ID:          node.Generate(),
		OrgID:       node.Generate(),
		Provider:    provider,
		Environment: usagedomain.EnvProd,
		Status:      connectiondomain.StatusActive,
	}
}

func TestBuildSamples_Deterministic(t *testing.T) {
	conn := testConnection(t, usagedomain.ProviderOpenAI)
	ts := time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC)

	first := BuildSamples(conn, ts)
	second := BuildSamples(conn, ts)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("openai yields one sample, got %d and %d", len(first), len(second))
	}
	if !first[0].Quantity.Equal(second[0].Quantity) {
		t.Fatalf("replayed poll diverged: %s vs %s", first[0].Quantity, second[0].Quantity)
	}
	if first[0].EventID() != second[0].EventID() {
		t.Fatal("replayed poll must map to the same event identity")
	}

	// The draw varies with the calendar day.
	varied := false
	for d := 1; d <= 5; d++ {
		day := BuildSamples(conn, ts.AddDate(0, 0, d))
		if !day[0].Quantity.Equal(first[0].Quantity) {
			varied = true
			break
		}
	}
	if !varied {
		t.Fatal("five consecutive days produced identical quantities")
	}
}

func TestBuildSamples_DistinctPerConnection(t *testing.T) {
	ts := time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC)
	a := testConnection(t, usagedomain.ProviderOpenAI)
	b := testConnection(t, usagedomain.ProviderOpenAI)

	sa := BuildSamples(a, ts)
	sb := BuildSamples(b, ts)
	if sa[0].EventID() == sb[0].EventID() {
		t.Fatal("different connections must not share event identities")
	}
}

func TestBuildSamples_QuantityRanges(t *testing.T) {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("openai", func(t *testing.T) {
		conn := testConnection(t, usagedomain.ProviderOpenAI)
		for d := 0; d < 30; d++ {
			samples := BuildSamples(conn, ts.AddDate(0, 0, d))
			qty := samples[0].Quantity.IntPart()
			// Prompt plus completion tokens.
			if qty < 230_000 || qty > 1_350_000 {
				t.Fatalf("day %d token total %d outside generator range", d, qty)
			}
			if samples[0].Metric != "openai:tokens" {
				t.Fatalf("metric = %q", samples[0].Metric)
			}
		}
	})

	t.Run("twilio", func(t *testing.T) {
		conn := testConnection(t, usagedomain.ProviderTwilio)
		samples := BuildSamples(conn, ts)
		if len(samples) != 2 {
			t.Fatalf("twilio yields sms and voice, got %d samples", len(samples))
		}
		for d := 0; d < 30; d++ {
			day := BuildSamples(conn, ts.AddDate(0, 0, d))
			sms, voice := day[0], day[1]
			if q := sms.Quantity.IntPart(); q < 150 || q > 2500 {
				t.Fatalf("day %d sms segments %d outside range", d, q)
			}
			if q := voice.Quantity.IntPart(); q < 25 || q > 480 {
				t.Fatalf("day %d voice minutes %d outside range", d, q)
			}
		}
	})

	t.Run("sendgrid", func(t *testing.T) {
		conn := testConnection(t, usagedomain.ProviderSendgrid)
		for d := 0; d < 30; d++ {
			samples := BuildSamples(conn, ts.AddDate(0, 0, d))
			if q := samples[0].Quantity.IntPart(); q < 1000 || q > 8000 {
				t.Fatalf("day %d emails %d outside range", d, q)
			}
		}
	})
}

func TestBuildSamples_SendgridPlanQuota(t *testing.T) {
	conn := testConnection(t, usagedomain.ProviderSendgrid)
	conn.Metadata = datatypes.JSONMap{"plan_quota": float64(2000)}
	ts := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	samples := BuildSamples(conn, ts)
	percent, ok := samples[0].Metadata["plan_consumed_percent"].(float64)
	if !ok {
		t.Fatal("plan_consumed_percent missing from metadata")
	}
	if percent <= 0 || percent > 100 {
		t.Fatalf("consumed percent = %f, want within (0, 100]", percent)
	}
}

func TestBuildSamples_UnknownProvider(t *testing.T) {
	conn := testConnection(t, usagedomain.ProviderStripe)
	if samples := BuildSamples(conn, time.Now()); samples != nil {
		t.Fatalf("stripe has no generator, got %d samples", len(samples))
	}
}

func TestCheckSimulatedStatus(t *testing.T) {
	tests := []struct {
		name          string
		value         any
		wantRetryable bool
		wantAPIErr    bool
		wantStatus    int
	}{
		{"absent", nil, false, false, 0},
		{"ok status", float64(200), false, false, 0},
		{"rate limited", float64(429), true, false, 429},
		{"server error", float64(503), true, false, 503},
		{"unauthorized", float64(401), false, true, 401},
		{"forbidden string", "403", false, true, 403},
		{"retryable string", "500", true, false, 500},
		{"garbage string", "not-a-status", false, true, 400},
		{"unsupported type", []string{"500"}, false, true, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := testConnection(t, usagedomain.ProviderOpenAI)
			if tt.value != nil {
				conn.Metadata = datatypes.JSONMap{"simulate_status": tt.value}
			}

			err := CheckSimulatedStatus(conn)
			var retryable *domain.RetryableError
			var apiErr *domain.APIError

			switch {
			case tt.wantRetryable:
				if !errors.As(err, &retryable) {
					t.Fatalf("got %v, want RetryableError", err)
				}
				if retryable.StatusCode != tt.wantStatus {
					t.Fatalf("status = %d, want %d", retryable.StatusCode, tt.wantStatus)
				}
			case tt.wantAPIErr:
				if !errors.As(err, &apiErr) {
					t.Fatalf("got %v, want APIError", err)
				}
				if errors.As(err, &retryable) {
					t.Fatal("terminal failure must not be retryable")
				}
				if apiErr.StatusCode != tt.wantStatus {
					t.Fatalf("status = %d, want %d", apiErr.StatusCode, tt.wantStatus)
				}
			default:
				if err != nil {
					t.Fatalf("got %v, want nil", err)
				}
			}
		})
	}
}

func TestDailyQuantity_RejectsNonPositiveRange(t *testing.T) {
	conn := testConnection(t, usagedomain.ProviderOpenAI)
	ts := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	defer func() {
		if recover() == nil {
			t.Fatal("an inverted quantity range must panic")
		}
	}()
	dailyQuantity(conn, "openai_prompt_tokens", 500, 500, ts)
}
