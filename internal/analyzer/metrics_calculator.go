package analyzer

import (
	"image"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// metricsCalculator implements MetricsCalculator, splitting pixel scans
// across goroutines by horizontal strip
type metricsCalculator struct {
	slicePool sync.Pool
}

// NewMetricsCalculator creates a new metrics calculator using Gonum
func NewMetricsCalculator() MetricsCalculator {
	return &metricsCalculator{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

// CalculateBasicMetrics computes average luminance, saturation and channel means
func (mc *metricsCalculator) CalculateBasicMetrics(img image.Image) metrics {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width == 0 || height == 0 {
		return metrics{}
	}

	type regionResult struct {
		lum, sat, r, g, b float64
		pixelCount        int
	}

	strips := splitRows(bounds, height)
	results := make(chan regionResult, len(strips))
	var wg sync.WaitGroup

	for _, s := range strips {
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()

			var res regionResult
			for y := startY; y < endY; y++ {
				for x := bounds.Min.X; x < bounds.Max.X; x++ {
					rVal, gVal, bVal, _ := img.At(x, y).RGBA()
					rf := float64(rVal) / 65535.0
					gf := float64(gVal) / 65535.0
					bf := float64(bVal) / 65535.0

					s, v := saturationValue(rf, gf, bf)
					res.sat += s
					res.lum += v
					res.r += rf
					res.g += gf
					res.b += bf
					res.pixelCount++
				}
			}
			results <- res
		}(s[0], s[1])
	}

	wg.Wait()
	close(results)

	var total regionResult
	for res := range results {
		total.lum += res.lum
		total.sat += res.sat
		total.r += res.r
		total.g += res.g
		total.b += res.b
		total.pixelCount += res.pixelCount
	}

	if total.pixelCount == 0 {
		return metrics{}
	}

	n := float64(total.pixelCount)
	return metrics{
		avgLuminance:  total.lum / n,
		avgSaturation: total.sat / n,
		avgR:          total.r / n,
		avgG:          total.g / n,
		avgB:          total.b / n,
	}
}

// CalculateLaplacianVariance is the variance of the 4-neighbour Laplacian,
// a standard sharpness measure
func (mc *metricsCalculator) CalculateLaplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	data := mc.slicePool.Get().([]float64)[:0]
	if cap(data) < (width-2)*(height-2) {
		data = make([]float64, 0, (width-2)*(height-2))
	}
	defer func() { mc.slicePool.Put(data[:0]) }()

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)

			data = append(data, -4*center+top+bottom+left+right)
		}
	}

	return stat.Variance(data, nil)
}

// CalculateBrightness computes average gray level on the 0-255 scale
func (mc *metricsCalculator) CalculateBrightness(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return 0
	}

	rows := make([]float64, 0, height)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		var sum float64
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum += float64(gray.GrayAt(x, y).Y)
		}
		rows = append(rows, sum/float64(width))
	}

	return stat.Mean(rows, nil)
}

// splitRows divides the image rows into at most NumCPU strips
func splitRows(bounds image.Rectangle, height int) [][2]int {
	numWorkers := runtime.NumCPU()
	if height < numWorkers {
		numWorkers = height
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	strips := make([][2]int, 0, numWorkers)
	for startY := bounds.Min.Y; startY < bounds.Max.Y; startY += rowsPerWorker {
		endY := startY + rowsPerWorker
		if endY > bounds.Max.Y {
			endY = bounds.Max.Y
		}
		strips = append(strips, [2]int{startY, endY})
	}
	return strips
}

// saturationValue returns the HSV saturation and value of a normalized color
func saturationValue(r, g, b float64) (s, v float64) {
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))

	if max == 0 {
		return 0, 0
	}
	return (max - min) / max, max
}
