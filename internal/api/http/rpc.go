package apihttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/elsbrock/putioarr/internal/domain"
)

const maxRPCBody = 16 << 20

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if r.Header.Get(sessionHeader) != s.sessionID {
		w.Header().Set(sessionHeader, s.sessionID)
		writeError(w, http.StatusConflict, "session_required", "missing or stale session id")
		return
	}
	if r.Method == http.MethodGet {
		w.Header().Set(sessionHeader, s.sessionID)
		writeJSON(w, http.StatusOK, rpcResponse{Result: "success"})
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRPCBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid rpc request")
		return
	}
	s.logger.Debug("rpc: request", slog.String("method", req.Method))

	args, err := s.dispatchRPC(r.Context(), req)
	if err != nil {
		var bad *badRequestError
		if errors.As(err, &bad) {
			s.logger.Warn("rpc: rejected",
				slog.String("method", req.Method),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Error("rpc: failed",
			slog.String("method", req.Method),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, rpcResponse{Result: err.Error(), Tag: req.Tag})
		return
	}
	writeJSON(w, http.StatusOK, rpcResponse{Result: "success", Arguments: args, Tag: req.Tag})
}

func (s *Server) dispatchRPC(ctx context.Context, req rpcRequest) (any, error) {
	switch req.Method {
	case "session-get":
		return newRPCSession(s.downloadDir), nil
	case "torrent-get":
		return s.torrentGet(ctx)
	case "torrent-add":
		var args torrentAddArgs
		if err := decodeArgs(req.Arguments, &args); err != nil {
			return nil, err
		}
		return s.torrentAdd(ctx, args)
	case "torrent-remove":
		var args torrentRemoveArgs
		if err := decodeArgs(req.Arguments, &args); err != nil {
			return nil, err
		}
		return nil, s.torrentRemove(ctx, args)
	case "torrent-set", "queue-move-top":
		return nil, nil
	default:
		return nil, badRequest("unknown method %q", req.Method)
	}
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return badRequest("invalid arguments: %v", err)
	}
	return nil
}

func (s *Server) torrentGet(ctx context.Context) (torrentGetResult, error) {
	transfers, err := s.remote.ListTransfers(ctx)
	if err != nil {
		return torrentGetResult{}, fmt.Errorf("list transfers: %w", err)
	}
	result := torrentGetResult{Torrents: make([]rpcTorrent, 0, len(transfers))}
	for _, rt := range transfers {
		if rt.SaveParentID != s.rootFolder {
			continue
		}
		var tracked *domain.TrackedTransfer
		if s.pipeline != nil {
			if tt, ok := s.pipeline.Lookup(rt.ID); ok {
				tracked = &tt
			}
		}
		result.Torrents = append(result.Torrents, toRPCTorrent(rt, tracked, s.downloadDir))
	}
	return result, nil
}

// toRPCTorrent maps a remote transfer to a Transmission torrent. A transfer
// that finished remotely is reported as downloading until every local target
// is on disk, so download clients only start importing complete payloads.
func toRPCTorrent(rt domain.RemoteTransfer, tracked *domain.TrackedTransfer, downloadDir string) rpcTorrent {
	t := rpcTorrent{
		ID:             int64(rt.ID),
		HashString:     rt.Hash,
		Name:           rt.Name,
		DownloadDir:    downloadDir,
		TotalSize:      rt.Size,
		DownloadedEver: rt.Downloaded,
		ETA:            rt.EstimatedTime,
		SecondsSeeding: rt.SecondsSeeding,
		SeedRatioLimit: 1.0,
		SeedIdleLimit:  100,
		FileCount:      1,
	}
	if tracked != nil && len(tracked.Transfer.Targets) > 0 {
		t.FileCount = 0
		for _, target := range tracked.Transfer.Targets {
			if target.Kind == domain.TargetFile {
				t.FileCount++
			}
		}
	}

	left := max(rt.Size-rt.Downloaded, 0)
	percent := rt.PercentDone

	switch {
	case rt.Status == domain.RemoteError:
		t.Status = statusStopped
		t.Error = errorLocal
		t.ErrorString = rt.ErrorMessage
		if t.ErrorString == "" {
			t.ErrorString = "remote transfer failed"
		}
	case tracked != nil && tracked.Stage == domain.StageFailed:
		t.Status = statusStopped
		t.Error = errorLocal
		t.ErrorString = "local download failed"
	case rt.Status.Finished() && tracked != nil && tracked.Stage.LocallyComplete():
		left, percent = 0, 100
		t.ETA = 0
		if rt.Status == domain.RemoteSeeding {
			t.Status = statusSeeding
		} else {
			t.Status = statusStopped
			t.IsFinished = true
		}
	case rt.Status.Finished():
		t.Status = statusDownloading
		percent = min(percent, 99)
		left = max(left, 1)
	case rt.Status == domain.RemoteDownloading || rt.Status == domain.RemoteCompleting:
		t.Status = statusDownloading
	default:
		t.Status = statusDownloadWait
	}

	t.LeftUntilDone = left
	t.PercentDone = float64(percent) / 100
	return t
}

func (s *Server) torrentAdd(ctx context.Context, args torrentAddArgs) (torrentAddResult, error) {
	var (
		rt   domain.RemoteTransfer
		hash string
		err  error
	)
	switch {
	case args.Metainfo != "":
		var data []byte
		data, err = base64.StdEncoding.DecodeString(args.Metainfo)
		if err != nil {
			return torrentAddResult{}, badRequest("invalid metainfo encoding")
		}
		var name string
		name, hash, err = inspectMetainfo(data)
		if err != nil {
			return torrentAddResult{}, err
		}
		rt, err = s.remote.UploadTorrent(ctx, name+".torrent", data, s.rootFolder)
	case args.Filename != "":
		link := strings.TrimSpace(args.Filename)
		hash, err = inspectLink(link)
		if err != nil {
			return torrentAddResult{}, err
		}
		rt, err = s.remote.AddTransfer(ctx, link, s.rootFolder)
	default:
		return torrentAddResult{}, badRequest("torrent-add requires filename or metainfo")
	}
	if err != nil {
		return torrentAddResult{}, fmt.Errorf("add transfer: %w", err)
	}
	if rt.Hash == "" {
		rt.Hash = hash
	}

	s.logger.Info("rpc: transfer added",
		slog.Int64("transferId", int64(rt.ID)),
		slog.String("hash", domain.ShortHash(rt.Hash)),
		slog.String("name", rt.Name),
	)

	if rt.Downloadable() && s.pipeline != nil {
		if err := s.pipeline.Enqueue(ctx, domain.TransferFromRemote(rt)); err != nil {
			s.logger.Warn("rpc: enqueue failed",
				slog.Int64("transferId", int64(rt.ID)),
				slog.String("error", err.Error()),
			)
		}
	}

	return torrentAddResult{TorrentAdded: &torrentAdded{
		ID:         int64(rt.ID),
		Name:       rt.Name,
		HashString: rt.Hash,
	}}, nil
}

// inspectMetainfo validates a .torrent payload and returns its name and info
// hash.
func inspectMetainfo(data []byte) (string, string, error) {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", "", badRequest("invalid metainfo: %v", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return "", "", badRequest("invalid metainfo info: %v", err)
	}
	hash := mi.HashInfoBytes().HexString()
	name := info.BestName()
	if name == "" {
		name = hash
	}
	return name, hash, nil
}

// inspectLink accepts magnet links and http(s) URLs. The info hash is only
// known for magnets.
func inspectLink(link string) (string, error) {
	switch {
	case strings.HasPrefix(link, "magnet:"):
		m, err := metainfo.ParseMagnetUri(link)
		if err != nil {
			return "", badRequest("invalid magnet link: %v", err)
		}
		return m.InfoHash.HexString(), nil
	case strings.HasPrefix(link, "http://"), strings.HasPrefix(link, "https://"):
		return "", nil
	default:
		return "", badRequest("unsupported link %q", truncate(link, 80))
	}
}

func (s *Server) torrentRemove(ctx context.Context, args torrentRemoveArgs) error {
	if args.IDs.empty() {
		return badRequest("torrent-remove requires ids")
	}
	transfers, err := s.remote.ListTransfers(ctx)
	if err != nil {
		return fmt.Errorf("list transfers: %w", err)
	}
	for _, rt := range transfers {
		if !args.IDs.matches(int64(rt.ID), rt.Hash) {
			continue
		}
		if err := s.remote.RemoveTransfer(ctx, rt.ID); err != nil {
			return fmt.Errorf("remove transfer %d: %w", rt.ID, err)
		}
		s.logger.Info("rpc: transfer removed",
			slog.Int64("transferId", int64(rt.ID)),
			slog.String("hash", domain.ShortHash(rt.Hash)),
			slog.String("name", rt.Name),
		)
		if args.DeleteLocalData && rt.FileID != 0 {
			if err := s.remote.DeleteFile(ctx, rt.FileID); err != nil {
				s.logger.Warn("rpc: delete remote files failed",
					slog.Int64("transferId", int64(rt.ID)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}
