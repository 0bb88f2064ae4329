package metrics

import "time"

type teeRecorder []Recorder

// Tee returns a Recorder that forwards every event to each of recorders.
func Tee(recorders ...Recorder) Recorder {
	return teeRecorder(recorders)
}

func (t teeRecorder) IncCacheHit(cacheType string) {
	for _, r := range t {
		r.IncCacheHit(cacheType)
	}
}

func (t teeRecorder) IncCacheMiss(cacheType string) {
	for _, r := range t {
		r.IncCacheMiss(cacheType)
	}
}

func (t teeRecorder) ObserveAPIRequest(endpoint string, status int, d time.Duration) {
	for _, r := range t {
		r.ObserveAPIRequest(endpoint, status, d)
	}
}

func (t teeRecorder) IncRateLimited(service string) {
	for _, r := range t {
		r.IncRateLimited(service)
	}
}

func (t teeRecorder) SetDataCollectionSuccess(service, location string, ok bool) {
	for _, r := range t {
		r.SetDataCollectionSuccess(service, location, ok)
	}
}

func (t teeRecorder) ObserveProcessingTime(service string, d time.Duration) {
	for _, r := range t {
		r.ObserveProcessingTime(service, d)
	}
}

func (t teeRecorder) IncError(service, kind string) {
	for _, r := range t {
		r.IncError(service, kind)
	}
}

func (t teeRecorder) AddWebsocketConnections(delta int) {
	for _, r := range t {
		r.AddWebsocketConnections(delta)
	}
}
