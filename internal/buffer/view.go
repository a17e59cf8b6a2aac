// SPDX-License-Identifier: MIT

package buffer

// ImageView is a typed reinterpretation of a MediaBuffer carrying
// pixel-format, logical width/height, and stride metadata. It holds a
// strong reference to the underlying buffer, released by Close.
type ImageView struct {
	buf  MediaBuffer
	info ImageInfo
}

// AsImage constructs an ImageView sharing buf's lifetime. It retains buf, so
// the caller keeps its own reference independently valid; Close releases the
// view's retained reference only.
func AsImage(buf MediaBuffer, info ImageInfo) (ImageView, error) {
	if err := info.Validate(); err != nil {
		return ImageView{}, errInvalidParam("buffer.AsImage", err)
	}
	buf.SetContentType(ContentImage)
	return ImageView{buf: buf.Retain(), info: info}, nil
}

// Buffer returns the underlying shared MediaBuffer handle (not retained).
func (v ImageView) Buffer() MediaBuffer { return v.buf }

// Info returns the image metadata.
func (v ImageView) Info() ImageInfo { return v.info }

// Close releases the view's strong reference to the underlying buffer.
func (v ImageView) Close() { v.buf.Release() }

// SampleView is a typed reinterpretation of a MediaBuffer carrying
// sample-format, channels, sample-rate, and frame-count metadata.
type SampleView struct {
	buf  MediaBuffer
	info SampleInfo
}

// AsSample constructs a SampleView sharing buf's lifetime, retaining buf.
func AsSample(buf MediaBuffer, info SampleInfo) (SampleView, error) {
	buf.SetContentType(ContentAudio)
	return SampleView{buf: buf.Retain(), info: info}, nil
}

// Buffer returns the underlying shared MediaBuffer handle (not retained).
func (v SampleView) Buffer() MediaBuffer { return v.buf }

// Info returns the sample metadata.
func (v SampleView) Info() SampleInfo { return v.info }

// Close releases the view's strong reference to the underlying buffer.
func (v SampleView) Close() { v.buf.Release() }
