package conv

import "github.com/gogpu/gputypes"

// DXGIFormat is a DXGI_FORMAT enumeration value.
type DXGIFormat uint32

// The DXGI formats the pipeline layer reports for its render targets.
const (
	DXGIFormatUnknown        DXGIFormat = 0
	DXGIFormatRGBA8Unorm     DXGIFormat = 28 // DXGI_FORMAT_R8G8B8A8_UNORM
	DXGIFormatD24UnormS8Uint DXGIFormat = 45 // DXGI_FORMAT_D24_UNORM_S8_UINT
	DXGIFormatBGRA8Unorm     DXGIFormat = 87 // DXGI_FORMAT_B8G8R8A8_UNORM
)

// ToDXGIFormat maps a texture format to its DXGI equivalent. Formats the
// D3D11-style backend does not consume map to DXGIFormatUnknown.
func ToDXGIFormat(format gputypes.TextureFormat) DXGIFormat {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm:
		return DXGIFormatRGBA8Unorm
	case gputypes.TextureFormatBGRA8Unorm:
		return DXGIFormatBGRA8Unorm
	case gputypes.TextureFormatDepth24PlusStencil8:
		return DXGIFormatD24UnormS8Uint
	default:
		return DXGIFormatUnknown
	}
}
