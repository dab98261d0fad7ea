package build

var (
	// chunkerDataDir is the environment variable that tells chunkerd/chunkerc
	// where to put the config dir (state files, daemon settings).
	chunkerDataDir = "CHUNKER_DATA_DIR"

	// chunkerAPIPassword names an environment variable for a custom API
	// password. Nothing in this module reads it; the daemon's HTTP surface
	// has no password check.
	chunkerAPIPassword = "CHUNKER_API_PASSWORD"
)
