package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Yoo1tic/gcli-nexus/internal/logging"
	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
	"github.com/Yoo1tic/gcli-nexus/internal/pool"
	"github.com/Yoo1tic/gcli-nexus/internal/thoughtsig"
)

const streamScannerBuffer = 8 * 1024 * 1024

// setSSEHeaders sets standard headers for Server-Sent Events streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// unwrapCLIEnvelope strips the {"response": ...} wrapper when present.
func unwrapCLIEnvelope(body []byte) []byte {
	if inner := gjson.GetBytes(body, "response"); inner.Exists() && inner.IsObject() {
		return []byte(inner.Raw)
	}
	return body
}

// JSONResponse forwards a non-streaming upstream response downstream,
// recording thought signatures on the way.
func JSONResponse(w http.ResponseWriter, svc *thoughtsig.Service, resp *http.Response, lease *pool.Lease) {
	defer lease.Release()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		nexuserr.WriteHTTP(w, &nexuserr.UpstreamTransient{Err: err})
		return
	}

	payload := unwrapCLIEnvelope(body)
	svc.RecordResponse(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(payload)
}

// StreamResponse pumps an upstream SSE stream downstream, teeing every
// chunk through the stream's sniffer and enforcing the idle timeout. A
// timeout or transport failure produces a terminal SSE error frame, never
// a silent truncation.
func StreamResponse(w http.ResponseWriter, r *http.Request, svc *thoughtsig.Service, resp *http.Response, lease *pool.Lease, idleTimeout time.Duration) {
	defer lease.Release()
	defer resp.Body.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		nexuserr.WriteHTTP(w, &nexuserr.StreamProtocol{Msg: "response writer does not support streaming"})
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sniffer := svc.NewSniffer()
	logger := logging.FromContext(r.Context())

	quit := make(chan struct{})
	defer close(quit)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(nil, streamScannerBuffer)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-quit:
				return
			case <-r.Context().Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case line, open := <-lines:
			if !open {
				select {
				case err := <-scanErr:
					logger.Errorf("upstream stream read failed: %v", err)
					writeStreamError(w, flusher, "upstream stream read failed")
				default:
				}
				return
			}

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(idleTimeout)

			done, event := processStreamLine(line, svc, sniffer, logger)
			if done {
				return
			}
			if event == nil {
				continue
			}
			w.Write([]byte("data: "))
			w.Write(event)
			w.Write([]byte("\n\n"))
			flusher.Flush()

		case <-idle.C:
			logger.Error("upstream SSE stream timed out (idle > " + idleTimeout.String() + ")")
			writeStreamError(w, flusher, "Stream idle timeout")
			return

		case <-r.Context().Done():
			return
		}
	}
}

// processStreamLine handles one raw SSE line. Returns done=true on a
// terminal event, and the payload to forward (nil to drop the line).
func processStreamLine(line []byte, svc *thoughtsig.Service, sniffer *thoughtsig.Sniffer, logger interface{ Warnf(string, ...any) }) (done bool, event []byte) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return false, nil
	}

	if bytes.HasPrefix(trimmed, []byte("event:")) {
		name := bytes.TrimSpace(bytes.TrimPrefix(trimmed, []byte("event:")))
		if bytes.Equal(name, []byte("done")) {
			return true, nil
		}
		return false, nil
	}

	if !bytes.HasPrefix(trimmed, []byte("data:")) {
		return false, nil
	}
	data := bytes.TrimSpace(bytes.TrimPrefix(trimmed, []byte("data:")))
	if len(data) == 0 {
		return false, nil
	}
	if bytes.Equal(data, []byte("[DONE]")) {
		return true, nil
	}

	if !gjson.ValidBytes(data) {
		preview := data
		if len(preview) > 50 {
			preview = preview[:50]
		}
		logger.Warnf("skipping invalid SSE JSON data: %s...", preview)
		return false, nil
	}

	payload := unwrapCLIEnvelope(data)
	svc.RecordStreamChunk(sniffer, payload)
	return false, payload
}

// writeStreamError emits the terminal SSE error frame.
func writeStreamError(w http.ResponseWriter, flusher http.Flusher, message string) {
	frame, _ := json.Marshal(nexuserr.ForStatus(http.StatusBadGateway, "UNAVAILABLE", message))
	w.Write([]byte("event: error\ndata: "))
	w.Write(frame)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}
