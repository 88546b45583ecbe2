package protocol

// CRC16 computes the CRC-16-CCITT (polynomial 0x1021, initial value
// 0xFFFF, no output inversion) over data, using the same shift-left,
// bit-at-a-time construction the teacher pack uses for its own on-wire
// checksums (driver/tmc2209's crc8, bip380's polymod). Both sides of the
// RT-MCU/C-MCU link must compute this identically (spec.md §4.1).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
