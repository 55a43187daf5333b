// Package softphone is an embeddable SIP softphone: a registration and call
// coordinator ([github.com/ghettovoice/softphone/phone]) driving a SIP engine
// ([github.com/ghettovoice/softphone/engine/sipua]) on behalf of a host
// application.
package softphone

// Version is the softphone version.
const Version = "0.1.0"
