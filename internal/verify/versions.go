package verify

// Supported runtime versions. Builds link against exactly these releases.
const (
	SupportedReactVersion    = "18.2.0"
	SupportedReactDOMVersion = "18.2.0"
)

// CheckVersions compares the declared react and react-dom versions against
// the supported constants by exact string equality. react is checked first.
func CheckVersions(deps map[string]string) error {
	if v := deps["react"]; v != SupportedReactVersion {
		return &ReactVersionMismatchError{Supplied: v, Supported: SupportedReactVersion}
	}

	if v := deps["react-dom"]; v != SupportedReactDOMVersion {
		return &ReactDOMVersionMismatchError{Supplied: v, Supported: SupportedReactDOMVersion}
	}

	return nil
}
