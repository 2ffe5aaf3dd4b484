package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGooglePlaces_SearchPaginates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		switch n {
		case 1:
			assert.Empty(t, r.URL.Query().Get("pagetoken"))
			fmt.Fprint(w, `{"status":"OK","next_page_token":"page2","results":[
				{"name":"Cafe A","place_id":"a","formatted_address":"Street 1, Berlin",
				 "geometry":{"location":{"lat":52.5,"lng":13.4}}}
			]}`)
		default:
			assert.Equal(t, "page2", r.URL.Query().Get("pagetoken"))
			fmt.Fprint(w, `{"status":"OK","results":[
				{"name":"Cafe B","place_id":"b","formatted_address":"Street 2, Berlin",
				 "geometry":{"location":{"lat":52.51,"lng":13.41}}}
			]}`)
		}
	}))
	defer srv.Close()

	p := NewGooglePlaces("test-key", fastRate(), nil,
		WithPlacesBaseURL(srv.URL),
		WithPlacesPageWait(time.Millisecond),
	)

	leads, err := p.Search(context.Background(), "Berlin", "cafe", 0)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Cafe A", leads[0].BusinessName)
	assert.Equal(t, "a", leads[0].RecordID)
	assert.Equal(t, "GooglePlaces", leads[0].Source)
	require.True(t, leads[0].HasCoordinates())
	assert.Equal(t, int32(2), calls.Load())
}

func TestGooglePlaces_LimitTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"OK","results":[
			{"name":"A","geometry":{"location":{"lat":1,"lng":1}}},
			{"name":"B","geometry":{"location":{"lat":2,"lng":2}}},
			{"name":"C","geometry":{"location":{"lat":3,"lng":3}}}
		]}`)
	}))
	defer srv.Close()

	p := NewGooglePlaces("k", fastRate(), nil,
		WithPlacesBaseURL(srv.URL),
		WithPlacesPageWait(time.Millisecond),
	)

	leads, err := p.Search(context.Background(), "Berlin", "cafe", 2)
	require.NoError(t, err)
	assert.Len(t, leads, 2)
}

func TestGooglePlaces_OverQueryLimitIsQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"OVER_QUERY_LIMIT","results":[]}`)
	}))
	defer srv.Close()

	p := NewGooglePlaces("k", fastRate(), nil,
		WithPlacesBaseURL(srv.URL),
		WithPlacesPageWait(time.Millisecond),
	)

	_, err := p.Search(context.Background(), "Berlin", "cafe", 0)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrQuotaExceeded, kind)
}

func TestGooglePlaces_BadStatusIsInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"REQUEST_DENIED","results":[]}`)
	}))
	defer srv.Close()

	p := NewGooglePlaces("k", fastRate(), nil, WithPlacesBaseURL(srv.URL))

	_, err := p.Search(context.Background(), "Berlin", "cafe", 0)
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, ErrInvalidResponse, kind)
}
