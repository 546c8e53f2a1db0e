package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/iostore"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testUser = uuid.MustParse("0763de67-f61e-3f5d-90e7-518e69793954")

func ptr(v float64) *float64 { return &v }

func TestResolveTimeRange(t *testing.T) {
	now := time.Unix(1000, 0)
	lag := 5 * time.Second

	tests := []struct {
		name     string
		earliest *float64
		state    schema.PipelineState
		upstream *schema.PipelineState
		want     schema.TimeRange
		wantErr  error
	}{
		{
			name:    "no entries",
			wantErr: contract.ErrNoData,
		},
		{
			name:     "first run starts at the earliest entry",
			earliest: ptr(100),
			want:     schema.TimeRange{StartTs: 100, EndTs: 995, FirstRun: true},
		},
		{
			name:  "later runs start at the watermark",
			state: schema.PipelineState{LastProcessedTs: ptr(500)},
			want:  schema.TimeRange{StartTs: 500, EndTs: 995},
		},
		{
			name:    "caught up",
			state:   schema.PipelineState{LastProcessedTs: ptr(995)},
			wantErr: contract.ErrNoData,
		},
		{
			name:     "first run with a single instant",
			earliest: ptr(995),
			want:     schema.TimeRange{StartTs: 995, EndTs: 995, FirstRun: true},
		},
		{
			name:     "entries newer than the lag",
			earliest: ptr(998),
			wantErr:  contract.ErrNoData,
		},
		{
			name:     "upstream never ran",
			state:    schema.PipelineState{LastProcessedTs: ptr(500)},
			upstream: &schema.PipelineState{},
			wantErr:  contract.ErrNoData,
		},
		{
			name:     "capped by upstream",
			state:    schema.PipelineState{LastProcessedTs: ptr(500)},
			upstream: &schema.PipelineState{LastProcessedTs: ptr(700)},
			want:     schema.TimeRange{StartTs: 500, EndTs: 700},
		},
		{
			name:     "upstream behind the watermark",
			state:    schema.PipelineState{LastProcessedTs: ptr(500)},
			upstream: &schema.PipelineState{LastProcessedTs: ptr(500)},
			wantErr:  contract.ErrNoData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := &iostore.MockTimeSeries{}
			if tt.earliest != nil {
				series.On("EarliestTs", mock.Anything, testUser, schema.TimeFieldData).Return(*tt.earliest, true, nil)
			} else {
				series.On("EarliestTs", mock.Anything, testUser, schema.TimeFieldData).Return(0.0, false, nil)
			}

			got, err := ResolveTimeRange(context.Background(), series, testUser, tt.state, tt.upstream, now, lag)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTimeRange_StoreError(t *testing.T) {
	series := &iostore.MockTimeSeries{}
	storeErr := contract.NewStoreAccessError("earliest timestamp", errors.New("connection refused"))
	series.On("EarliestTs", mock.Anything, testUser, schema.TimeFieldData).Return(0.0, false, storeErr)

	_, err := ResolveTimeRange(context.Background(), series, testUser, schema.PipelineState{}, nil, time.Now(), 0)
	var sae *contract.StoreAccessError
	assert.ErrorAs(t, err, &sae)
	assert.True(t, contract.IsRetryable(err))
}
