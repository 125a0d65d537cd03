package probe

// Operating system families inferred from the initial TTL of a reply.
const (
	OSLinuxUnix  = "Linux/Unix"
	OSWindows    = "Windows"
	OSSolarisAIX = "Solaris/AIX"
)

// ttlBuckets are ordered by ceiling; the first bucket whose ceiling is not
// below the observed TTL wins.
var ttlBuckets = []struct {
	ceiling int
	family  string
}{
	{64, OSLinuxUnix},
	{128, OSWindows},
	{255, OSSolarisAIX},
}

// GuessOSFromTTL maps an observed TTL to an OS family. A missing (zero or
// negative) or out-of-range TTL yields no guess.
func GuessOSFromTTL(ttl int) string {
	if ttl <= 0 {
		return ""
	}
	for _, b := range ttlBuckets {
		if ttl <= b.ceiling {
			return b.family
		}
	}
	return ""
}

// TTLGuesser guesses the OS from the probe TTL.
type TTLGuesser struct{}

// GuessOS implements OSGuesser.
func (TTLGuesser) GuessOS(r Reachability) string {
	return GuessOSFromTTL(r.TTL)
}
