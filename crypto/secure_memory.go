package crypto

import "runtime"

// ZeroBytes overwrites sensitive key material.
func ZeroBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}
