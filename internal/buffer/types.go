// SPDX-License-Identifier: MIT

// Package buffer implements MediaBuffer: the reference-counted data container
// with typed views (image, sample) and a pluggable deleter that every flow
// graph edge carries its payload in.
package buffer

// MemKind selects the allocation backend for Alloc and Clone.
type MemKind int

const (
	// MemCommon is a plain heap allocation.
	MemCommon MemKind = iota
	// MemHardware is backed by a sharable file-descriptor handle, standing
	// in for a DMA-capable shared-memory allocation. The concrete
	// DRM/V4L2/hardware-codec allocator is an external collaborator; this
	// package models the handle shape only.
	MemHardware
)

func (k MemKind) String() string {
	switch k {
	case MemCommon:
		return "common"
	case MemHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// ContentType tags what a MediaBuffer's payload represents.
type ContentType int

const (
	ContentNone ContentType = iota
	ContentAudio
	ContentImage
	ContentVideo
	ContentText
)

func (c ContentType) String() string {
	switch c {
	case ContentAudio:
		return "audio"
	case ContentImage:
		return "image"
	case ContentVideo:
		return "video"
	case ContentText:
		return "text"
	default:
		return "none"
	}
}

// Flags is the 32-bit user-flag bitset carrying per-codec hints.
type Flags uint32

const (
	FlagKeyframe Flags = 1 << iota
	FlagExtradata
	FlagSingleNAL
	FlagEOF
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// PixelFormat tags an ImageBuffer's pixel layout.
type PixelFormat int

const (
	PixelUnknown PixelFormat = iota
	PixelYUV420P
	PixelNV12
	PixelNV21
	PixelYUV422P
	PixelNV16
	PixelNV61
	PixelYUYV422
	PixelUYVY422
	PixelRGB565
	PixelBGR565
	PixelRGB888
	PixelBGR888
	PixelARGB8888
	PixelABGR8888
	PixelJPEG
)

// SampleFormat tags a SampleBuffer's sample layout.
type SampleFormat int

const (
	SampleUnknown SampleFormat = iota
	SamplePCMU8
	SamplePCMS16
	SamplePCMS32
)

// ImageInfo describes the typed metadata attached to an ImageBuffer.
type ImageInfo struct {
	Format   PixelFormat
	Width    int
	Height   int
	StrideW  int
	StrideH  int
}

// Validate enforces the stride invariant: stride_w >= w and stride_h >= h.
func (i ImageInfo) Validate() error {
	if i.StrideW < i.Width {
		return errStrideWidth
	}
	if i.StrideH < i.Height {
		return errStrideHeight
	}
	return nil
}

// SampleInfo describes the typed metadata attached to a SampleBuffer.
type SampleInfo struct {
	Format     SampleFormat
	Channels   int
	SampleRate int
	Frames     int
}
