package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adsynchq/adsync-backend/internal/etl/normalizer"
	"github.com/adsynchq/adsync-backend/pkg/adsapi"
)

func TestDateKeyFromISO(t *testing.T) {
	require.Equal(t, 20240105, dateKeyFromISO("2024-01-05"))
	require.Equal(t, 20240105, dateKeyFromISO(" 2024-01-05 "))
	require.Equal(t, 0, dateKeyFromISO("01/05/2024"))
	require.Equal(t, 0, dateKeyFromISO(""))
}

func TestParseRecordsDropsUnparseableDates(t *testing.T) {
	rows := []adsapi.InsightRow{
		coreRow("2024-01-05", "11", "10.00"),
		coreRow("not-a-date", "12", "20.00"),
		coreRow("", "13", "30.00"),
	}

	records := parseRecords(rows, normalizer.New(nil))

	require.Len(t, records, 1)
	require.Equal(t, 20240105, records[0].DateKey)
	require.Equal(t, int64(11), records[0].CampaignID)
}
