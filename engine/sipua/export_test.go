package sipua

var (
	GrantedExpires = grantedExpires
	RefreshDelay   = refreshDelay
)
