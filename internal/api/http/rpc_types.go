package apihttp

import (
	"encoding/json"

	"github.com/elsbrock/putioarr/internal/domain"
)

const sessionHeader = "X-Transmission-Session-Id"

// Transmission torrent status codes.
const (
	statusStopped      = 0
	statusDownloadWait = 3
	statusDownloading  = 4
	statusSeeding      = 6
)

// errorLocal is Transmission's "local error" class for errorString.
const errorLocal = 3

type rpcRequest struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Tag       *int64          `json:"tag,omitempty"`
}

type rpcResponse struct {
	Result    string `json:"result"`
	Arguments any    `json:"arguments,omitempty"`
	Tag       *int64 `json:"tag,omitempty"`
}

type rpcSession struct {
	RPCVersion              string  `json:"rpc-version"`
	Version                 string  `json:"version"`
	DownloadDir             string  `json:"download-dir"`
	SeedRatioLimit          float64 `json:"seedRatioLimit"`
	SeedRatioLimited        bool    `json:"seedRatioLimited"`
	IdleSeedingLimit        int64   `json:"idle-seeding-limit"`
	IdleSeedingLimitEnabled bool    `json:"idle-seeding-limit-enabled"`
}

func newRPCSession(downloadDir string) rpcSession {
	return rpcSession{
		RPCVersion:              "18",
		Version:                 "14.0.0",
		DownloadDir:             downloadDir,
		SeedRatioLimit:          1.0,
		SeedRatioLimited:        true,
		IdleSeedingLimit:        100,
		IdleSeedingLimitEnabled: false,
	}
}

type rpcTorrent struct {
	ID                 int64   `json:"id"`
	HashString         string  `json:"hashString"`
	Name               string  `json:"name"`
	DownloadDir        string  `json:"downloadDir"`
	TotalSize          int64   `json:"totalSize"`
	LeftUntilDone      int64   `json:"leftUntilDone"`
	DownloadedEver     int64   `json:"downloadedEver"`
	PercentDone        float64 `json:"percentDone"`
	IsFinished         bool    `json:"isFinished"`
	ETA                int64   `json:"eta"`
	Status             int     `json:"status"`
	Error              int     `json:"error"`
	ErrorString        string  `json:"errorString"`
	SecondsDownloading int64   `json:"secondsDownloading"`
	SecondsSeeding     int64   `json:"secondsSeeding"`
	SeedRatioLimit     float64 `json:"seedRatioLimit"`
	SeedRatioMode      int     `json:"seedRatioMode"`
	SeedIdleLimit      int64   `json:"seedIdleLimit"`
	SeedIdleMode       int     `json:"seedIdleMode"`
	FileCount          int     `json:"fileCount"`
}

type torrentGetResult struct {
	Torrents []rpcTorrent `json:"torrents"`
}

type torrentAddArgs struct {
	Filename string `json:"filename"`
	Metainfo string `json:"metainfo"`
}

type torrentAdded struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HashString string `json:"hashString"`
}

type torrentAddResult struct {
	TorrentAdded *torrentAdded `json:"torrent-added,omitempty"`
}

type torrentRemoveArgs struct {
	IDs             rpcIDs `json:"ids"`
	DeleteLocalData bool   `json:"delete-local-data"`
}

type pipelineResponse struct {
	Transfers []domain.TrackedTransfer `json:"transfers"`
	Failed    []domain.FailedTransfer  `json:"failed"`
	Watchers  map[string]int           `json:"watchers"`
}
