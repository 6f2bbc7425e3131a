package config

const (
	defaultStopGraceSeconds = 10
	defaultQueueCapacity    = 128
	defaultChunkSize        = 1024
	defaultHistoryEnabled   = true
	defaultHistoryPath      = "~/.local/share/ffpipe/history.db"
	defaultFeedBind         = ""
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"

	maxQueueCapacity = 1 << 16
	minChunkSize     = 16
	maxChunkSize     = 1 << 20

	envBinary     = "FFPIPE_FFMPEG"
	envInstallDir = "FFPIPE_INSTALL_DIR"
)
