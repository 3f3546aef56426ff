package protocol

// This package implements encoding and decoding for the BOSSWAVE framing
// that devices use to talk to a router over a persistent TCP stream.
//
// The framing aims to be
//
// - trivially parseable by a device whose transport can only "read exactly N bytes"
// - human readable
// - self delimiting, lengths are declared before values
//
// - `Header`  - The fixed size out-of-band header that opens every message.
// - `Field`   - A key/value pair belonging to one of three groups.
// - `Message` - A header, zero or more fields, then the end sentinel.
//
// === Header
//
// The header is a fixed width text record
//
//   ```
//   <cmd:4> <framelen:10> <seqno:10>\n
//   ```
//
// `cmd` is 4 raw bytes (e.g. `PUB `), the two numbers are unsigned decimal
// left padded with zeros. Devices always send a frame length of 0.
//
//   ```
//   PUB  0000000000 0000000005\n
//   ```
//
// === Fields
//
// Every field is a header line followed by exactly `<length>` bytes of value
// and a newline
//
//   ```
//   <type> <key> <length>\n
//   <value>\n
//   ```
//
// `<type>` is one of
//
// - `kv` - key/value
// - `po` - payload object
// - `ro` - routing object
//
// A declared length of 0 is not accepted, it can't be told apart from a
// garbled length token.
//
// === End of message
//
// The field list is closed by a line holding the single token `end`
//
//   ```
//   end\n
//   ```
//
// === Full example
//
//   ```
//   PUB  0000000000 0000000001\n
//   kv a 1\n
//   1\n
//   end\n
//   ```
//
// The asynchronous, continuation driven reader lives in the engine package.
// ReadMessage in this package is its blocking counterpart for servers that
// own a goroutine per connection.
