package chunk

// Library versions are written as 0x3VVRB style numbers (3.6.0.3 is 0x36003).
const (
	// DefaultVersion is stamped into every header unless the writer is told otherwise.
	DefaultVersion uint32 = 0x36003
	// DefaultBuild is the build number paired with DefaultVersion.
	DefaultBuild uint32 = 0xFFFF
)

// PackLibraryID encodes a version and build into the header's third word.
//
// Two layouts exist. Builds other than zero use the modern layout: version
// minus 0x30000 in bits 14..31 (upper byte), the version's low 6 bits in bits
// 16..21 and the build in the low 16 bits. A zero build uses the legacy layout,
// which is just the version shifted right by 8.
func PackLibraryID(version, build uint32) uint32 {
	if build != 0 {
		return (((version - 0x30000) & 0x3FF00) << 14) | ((version & 0x3F) << 16) | (build & 0xFFFF)
	}
	return version >> 8
}

// UnpackVersion decodes the version from a packed library id. Legacy ids
// have their upper 16 bits clear.
func UnpackVersion(id uint32) uint32 {
	if id&0xFFFF0000 != 0 {
		return (((id >> 14) & 0x3FF00) + 0x30000) | ((id >> 16) & 0x3F)
	}
	return id << 8
}

// UnpackBuild decodes the build number, which legacy ids do not carry.
func UnpackBuild(id uint32) uint32 {
	if id&0xFFFF0000 != 0 {
		return id & 0xFFFF
	}
	return 0
}
