package types

// Version is the canonical kernel version.
// Reported as implementation_version in kernel_info_reply and by `vkernel version`.
const Version = "0.1.0"

// ProtocolVersion is the messaging protocol version stamped on every header.
const ProtocolVersion = "5.3"

// Implementation is the kernel implementation name.
// Also used as the username on every produced header.
const Implementation = "v-kernel"
