package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ssargent/datapak/pkg/codec"
	"github.com/ssargent/datapak/pkg/store"
)

const (
	checksumHeader  = "X-Checksum"
	algorithmHeader = "X-Checksum-Algorithm"

	defaultListLimit = 1000
	maxListLimit     = 100000
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	meta, err := s.reader.Meta()
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to read store metadata: %v", err), http.StatusInternalServerError)
		return
	}

	entries, err := s.reader.Len()
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to count entries: %v", err), http.StatusInternalServerError)
		return
	}

	var disk uint64
	if s.config.DiskUsage != nil {
		disk = s.config.DiskUsage()
	}
	s.metrics.UpdateStoreStats(uint64(entries), disk)

	sendSuccess(w, StatsResponse{
		FormatVersion: meta.FormatVersion,
		KeyScheme:     string(meta.KeyScheme),
		Checksum:      string(meta.Checksum),
		EntryCount:    uint64(entries),
		TotalBytes:    meta.TotalBytes,
		DiskBytes:     disk,
		CreatedAt:     meta.CreatedAt,
		UpdatedAt:     meta.UpdatedAt,
		LastRunID:     meta.LastRunID,
		Runs:          meta.Runs,
	})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			sendError(w, fmt.Sprintf("limit must be between 1 and %d", maxListLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.reader.List(prefix, limit)
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to list entries: %v", err), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []string{}
	}
	sendSuccess(w, EntriesResponse{Prefix: prefix, Count: len(entries), Entries: entries})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	relPath, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		sendError(w, "Invalid entry path", http.StatusBadRequest)
		return
	}
	if _, err := codec.NormalizePath(relPath); err != nil {
		sendError(w, fmt.Sprintf("Invalid entry path: %v", err), http.StatusBadRequest)
		return
	}
	rec, err := s.reader.Get(relPath)
	s.sendRecord(w, rec, err)
}

func (s *Server) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "ordinal"), 10, 64)
	if err != nil {
		sendError(w, "Ordinal must be a non-negative integer", http.StatusBadRequest)
		return
	}
	rec, err := s.reader.At(n)
	s.sendRecord(w, rec, err)
}

// sendRecord writes a verified payload, or maps the lookup error to a
// status.
func (s *Server) sendRecord(w http.ResponseWriter, rec *codec.Record, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendError(w, "Entry not found", http.StatusNotFound)
		return
	case errors.Is(err, codec.ErrChecksumMismatch), errors.Is(err, codec.ErrCorruptRecord):
		s.logger.Warn("corrupt entry served as error", "error", err)
		sendError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Payload)))
	w.Header().Set("X-Entry-Path", rec.Path)
	w.Header().Set(checksumHeader, hex.EncodeToString(rec.Checksum))
	w.Header().Set(algorithmHeader, string(rec.Algorithm))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Payload)
}
