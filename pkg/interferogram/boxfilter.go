package interferogram

import (
	"github.com/askiada/go-insar/internal/parallel"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// boxMean returns the mean of src over a win x win window centred on every pixel. Pixels outside
// the grid are taken from the reflected interior, so edge pixels average a full window.
func boxMean(src []float64, width, height, win int) ([]float64, error) {
	if win < 1 || win%2 == 0 {
		return nil, insarerr.Configf("window size must be a positive odd number, got %d", win)
	}

	half := win / 2
	norm := 1 / float64(win)

	tmp := make([]float64, len(src))
	err := parallel.Rows(height, func(start, end int) error {
		for y := start; y < end; y++ {
			row := src[y*width : (y+1)*width]
			for x := 0; x < width; x++ {
				var sum float64
				for k := -half; k <= half; k++ {
					sum += row[raster.Reflect(x+k, width)]
				}
				tmp[y*width+x] = sum * norm
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(src))
	err = parallel.Rows(height, func(start, end int) error {
		for y := start; y < end; y++ {
			for x := 0; x < width; x++ {
				var sum float64
				for k := -half; k <= half; k++ {
					sum += tmp[raster.Reflect(y+k, height)*width+x]
				}
				out[y*width+x] = sum * norm
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}
