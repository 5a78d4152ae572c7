// Package chunk implements the versioned, length-prefixed chunk stream used by
// every strata asset file.
//
// A chunk is a 12-byte little-endian header (type, payload length, packed
// library id) followed by exactly length payload bytes, which may themselves be
// nested chunks. Readers skip chunks they do not understand by length, which is
// what keeps old readers working on files written by newer writers.
package chunk

import "fmt"

// HeaderSize is the encoded size of a chunk header.
const HeaderSize = 12

// Type identifies a chunk. Plugin ids share the same number space because a
// plugin's stream form is a chunk nested inside an EXTENSION chunk.
type Type uint32

// Core record chunk types. These values are on-disk and must never change.
const (
	TypeNAObject      Type = 0x00
	TypeStruct        Type = 0x01
	TypeString        Type = 0x02
	TypeExtension     Type = 0x03
	TypeCamera        Type = 0x05
	TypeTexture       Type = 0x06
	TypeMaterial      Type = 0x07
	TypeMatList       Type = 0x08
	TypeFrameList     Type = 0x0E
	TypeGeometry      Type = 0x0F
	TypeClump         Type = 0x10
	TypeLight         Type = 0x12
	TypeUnicodeString Type = 0x13
	TypeAtomic        Type = 0x14
	TypeTextureNative Type = 0x15
	TypeTexDictionary Type = 0x16
	TypeImage         Type = 0x18
	TypeGeometryList  Type = 0x1A
	TypeRightToRender Type = 0x1F
)

// Plugin ids of the built-in extensions.
const (
	TypeSkyMipmap  Type = 0x110
	TypeAnisotropy Type = 0x127
	TypeBinMesh    Type = 0x50E
	TypeNativeData Type = 0x510
)

var typeNames = map[Type]string{
	TypeNAObject:      "NAObject",
	TypeStruct:        "Struct",
	TypeString:        "String",
	TypeExtension:     "Extension",
	TypeCamera:        "Camera",
	TypeTexture:       "Texture",
	TypeMaterial:      "Material",
	TypeMatList:       "MaterialList",
	TypeFrameList:     "FrameList",
	TypeGeometry:      "Geometry",
	TypeClump:         "Clump",
	TypeLight:         "Light",
	TypeUnicodeString: "UnicodeString",
	TypeAtomic:        "Atomic",
	TypeTextureNative: "TextureNative",
	TypeTexDictionary: "TexDictionary",
	TypeImage:         "Image",
	TypeGeometryList:  "GeometryList",
	TypeRightToRender: "RightToRender",
	TypeSkyMipmap:     "SkyMipmap",
	TypeAnisotropy:    "Anisotropy",
	TypeBinMesh:       "BinMesh",
	TypeNativeData:    "NativeData",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%x)", uint32(t))
}

// Container reports whether chunks of type t hold nested chunks rather than
// opaque payload bytes.
func (t Type) Container() bool {
	switch t {
	case TypeExtension, TypeCamera, TypeTexture, TypeMaterial, TypeMatList,
		TypeFrameList, TypeGeometry, TypeClump, TypeLight, TypeAtomic,
		TypeTextureNative, TypeTexDictionary, TypeGeometryList:
		return true
	}
	return false
}

// Header is a decoded chunk header.
type Header struct {
	Type      Type
	Length    uint32
	LibraryID uint32
}

// Version returns the library version the chunk was written with.
func (h Header) Version() uint32 { return UnpackVersion(h.LibraryID) }

// Build returns the library build number, zero for legacy headers.
func (h Header) Build() uint32 { return UnpackBuild(h.LibraryID) }

func (h Header) String() string {
	return fmt.Sprintf("%s len=%d version=0x%05x build=0x%04x", h.Type, h.Length, h.Version(), h.Build())
}
