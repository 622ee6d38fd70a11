package preflight

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

const mmPerInch = 25.4

// extractResolution は埋め込みの解像度メタデータを読み取ります。
// 見つからない場合は nil（「メタデータなし」は0や既定値とは別の状態）。
// 値は表示要件に合わせて小数1桁に丸めます。
func extractResolution(data []byte, kind imageFormat) *Resolution {
	var res *Resolution
	switch kind {
	case formatPNG:
		res = pngResolution(data)
	case formatJPEG:
		res = exifResolution(data)
		if res == nil {
			res = jfifResolution(data)
		}
	case formatTIFF:
		res = exifResolution(data)
	case formatBMP:
		res = bmpResolution(data)
	}
	// GIFには密度メタデータが存在しない

	if res == nil || res.DpiX <= 0 || res.DpiY <= 0 {
		return nil
	}
	res.DpiX = roundTo1(res.DpiX)
	res.DpiY = roundTo1(res.DpiY)
	return res
}

func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}

// pngResolution はPNGのpHYsチャンクから解像度を読み取ります。
// unit==1（メートル）のときのみDPIに換算できます。
func pngResolution(data []byte) *Resolution {
	const signatureLen = 8
	if len(data) < signatureLen {
		return nil
	}
	buf := bytes.NewReader(data[signatureLen:])

	for {
		var length uint32
		if err := binary.Read(buf, binary.BigEndian, &length); err != nil {
			return nil
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(buf, chunkType); err != nil {
			return nil
		}

		if string(chunkType) == "pHYs" {
			var ppuX, ppuY uint32
			var unit byte
			if err := binary.Read(buf, binary.BigEndian, &ppuX); err != nil {
				return nil
			}
			if err := binary.Read(buf, binary.BigEndian, &ppuY); err != nil {
				return nil
			}
			if err := binary.Read(buf, binary.BigEndian, &unit); err != nil {
				return nil
			}
			if unit != 1 {
				// unit==0 はアスペクト比のみで物理解像度ではない
				return nil
			}
			return &Resolution{
				DpiX: float64(ppuX) * 0.0254,
				DpiY: float64(ppuY) * 0.0254,
			}
		}

		// チャンクデータ + CRC を読み飛ばす
		if _, err := buf.Seek(int64(length)+4, io.SeekCurrent); err != nil {
			return nil
		}
	}
}

// exifResolution はEXIFのXResolution/YResolutionから解像度を読み取ります。
// ResolutionUnit==3（cm）の場合はインチに換算します。
func exifResolution(data []byte) *Resolution {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return nil
	}

	im := exifcommon.NewIfdMapping()
	ti := exif.NewTagIndex()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return nil
	}

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return nil
	}

	var dpiX, dpiY float64

	if tags, err := index.RootIfd.FindTagWithName("XResolution"); err == nil && len(tags) > 0 {
		if val, err := tags[0].Value(); err == nil {
			if rats, ok := val.([]exifcommon.Rational); ok && len(rats) > 0 && rats[0].Denominator != 0 {
				dpiX = float64(rats[0].Numerator) / float64(rats[0].Denominator)
			}
		}
	}
	if tags, err := index.RootIfd.FindTagWithName("YResolution"); err == nil && len(tags) > 0 {
		if val, err := tags[0].Value(); err == nil {
			if rats, ok := val.([]exifcommon.Rational); ok && len(rats) > 0 && rats[0].Denominator != 0 {
				dpiY = float64(rats[0].Numerator) / float64(rats[0].Denominator)
			}
		}
	}

	if dpiX <= 0 && dpiY <= 0 {
		return nil
	}
	if dpiX <= 0 {
		dpiX = dpiY
	}
	if dpiY <= 0 {
		dpiY = dpiX
	}

	if tags, err := index.RootIfd.FindTagWithName("ResolutionUnit"); err == nil && len(tags) > 0 {
		if val, err := tags[0].Value(); err == nil {
			centimeters := false
			switch u := val.(type) {
			case uint16:
				centimeters = u == 3
			case []uint16:
				centimeters = len(u) > 0 && u[0] == 3
			}
			if centimeters {
				dpiX *= 2.54
				dpiY *= 2.54
			}
		}
	}

	return &Resolution{DpiX: dpiX, DpiY: dpiY}
}

// jfifResolution はJFIF APP0セグメントの密度フィールドから解像度を読み取ります。
// EXIFを持たないJPEGの大半はこちらに密度を書いています。
func jfifResolution(data []byte) *Resolution {
	buf := bytes.NewReader(data)

	var soi uint16
	if err := binary.Read(buf, binary.BigEndian, &soi); err != nil || soi != 0xFFD8 {
		return nil
	}

	for {
		var marker uint16
		if err := binary.Read(buf, binary.BigEndian, &marker); err != nil {
			return nil
		}
		// SOS以降はエントロピーデータなので打ち切る
		if marker == 0xFFDA {
			return nil
		}

		var length uint16
		if err := binary.Read(buf, binary.BigEndian, &length); err != nil || length < 2 {
			return nil
		}
		segment := make([]byte, int(length)-2)
		if _, err := io.ReadFull(buf, segment); err != nil {
			return nil
		}

		if marker != 0xFFE0 {
			continue
		}
		if len(segment) < 12 || !bytes.Equal(segment[:5], []byte("JFIF\x00")) {
			continue
		}

		units := segment[7]
		xDensity := float64(binary.BigEndian.Uint16(segment[8:10]))
		yDensity := float64(binary.BigEndian.Uint16(segment[10:12]))

		switch units {
		case 1: // dots per inch
			return &Resolution{DpiX: xDensity, DpiY: yDensity}
		case 2: // dots per cm
			return &Resolution{DpiX: xDensity * 2.54, DpiY: yDensity * 2.54}
		default:
			// units==0 はアスペクト比のみ
			return nil
		}
	}
}

// bmpResolution はBMPヘッダのpixels-per-meterフィールドから解像度を読み取ります。
func bmpResolution(data []byte) *Resolution {
	// ファイルヘッダ14バイト + BITMAPINFOHEADER(40バイト以上)が必要
	if len(data) < 54 || data[0] != 'B' || data[1] != 'M' {
		return nil
	}
	headerSize := binary.LittleEndian.Uint32(data[14:18])
	if headerSize < 40 {
		return nil
	}

	ppmX := int32(binary.LittleEndian.Uint32(data[38:42]))
	ppmY := int32(binary.LittleEndian.Uint32(data[42:46]))
	if ppmX <= 0 || ppmY <= 0 {
		return nil
	}
	return &Resolution{
		DpiX: float64(ppmX) * 0.0254,
		DpiY: float64(ppmY) * 0.0254,
	}
}
