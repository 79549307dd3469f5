package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPaginateStopsWhenNoMore(t *testing.T) {
	var pagesFetched []int
	out := Paginate(context.Background(), zap.NewNop(), 10, func(ctx context.Context, page int) ([]int, bool, error) {
		pagesFetched = append(pagesFetched, page)
		return []int{page * 10, page*10 + 1}, page < 3, nil
	})

	assert.Equal(t, []int{1, 2, 3}, pagesFetched)
	assert.Equal(t, []int{10, 11, 20, 21, 30, 31}, out)
}

func TestPaginateStopsAtCap(t *testing.T) {
	var pagesFetched []int
	out := Paginate(context.Background(), zap.NewNop(), 3, func(ctx context.Context, page int) ([]int, bool, error) {
		pagesFetched = append(pagesFetched, page)
		return []int{page}, true, nil
	})

	assert.Equal(t, []int{1, 2, 3}, pagesFetched)
	assert.Equal(t, []int{1, 2, 3}, out)
}

func TestPaginateSkipsFailedPage(t *testing.T) {
	out := Paginate(context.Background(), zap.NewNop(), 4, func(ctx context.Context, page int) ([]int, bool, error) {
		if page == 2 {
			return nil, false, errors.New("upstream hiccup")
		}
		return []int{page}, page < 4, nil
	})

	// page 2 is a gap, pagination continues past it
	assert.Equal(t, []int{1, 3, 4}, out)
}

func TestPaginateStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var pagesFetched []int
	out := Paginate(ctx, zap.NewNop(), 10, func(ctx context.Context, page int) ([]int, bool, error) {
		pagesFetched = append(pagesFetched, page)
		if page == 2 {
			cancel()
		}
		return []int{page}, true, nil
	})

	assert.Equal(t, []int{1, 2}, pagesFetched)
	assert.Equal(t, []int{1, 2}, out)
}
