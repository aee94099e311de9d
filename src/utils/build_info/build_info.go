package build_info

// Values overwritten in compile time with ldflags
var (
	Version   = "dev"
	BuildDate = "unknown"
)
