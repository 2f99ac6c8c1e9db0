package cryptomatte_test

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mrjoshuak/go-cryptomatte/exr"
	"github.com/mrjoshuak/go-cryptomatte/exrmatte"
	"github.com/mrjoshuak/go-cryptomatte/matte"
	"github.com/mrjoshuak/go-cryptomatte/matteid"
)

// Example_bake accumulates two samples of a 2x1 image, writes the result
// as a Cryptomatte EXR and keys a matte back out of it.
func Example_bake() {
	s, err := matte.NewSession(matte.Config{
		Levels:   2,
		Accurate: true,
		Layers:   matte.NewLayerSet(matte.LayerObject),
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer s.Free()
	if err := s.Allocate(2, 1); err != nil {
		fmt.Println("Error:", err)
		return
	}

	// Left pixel always sees "Hero"; right pixel sees "Prop" half the time.
	hero := matteid.CryptomatteHashFloat("Hero")
	prop := matteid.CryptomatteHashFloat("Prop")
	s.Integrate([]float32{hero, prop})
	s.Integrate([]float32{hero, 0})
	if err := s.Finalize(nil); err != nil {
		fmt.Println("Error:", err)
		return
	}

	manifest := matteid.NewManifest()
	manifest.Add("Hero")
	manifest.Add("Prop")
	layers, err := exrmatte.FromSession(s, map[matte.Layer]*matteid.Manifest{matte.LayerObject: manifest})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	var buf bytes.Buffer
	if err := exrmatte.Write(&buf, layers); err != nil {
		fmt.Println("Error:", err)
		return
	}

	f, err := exrmatte.Decode(buf.Bytes())
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	k, err := f.Keyer("CryptoObject")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("channels:", strings.Join(f.Info().Channels, " "))
	fmt.Println("Hero:", k.Matte("Hero"))
	fmt.Println("Prop:", k.Matte("Prop"))
	// Output:
	// channels: CryptoObject00.A CryptoObject00.B CryptoObject00.G CryptoObject00.R
	// Hero: [1 0]
	// Prop: [0 0.5]
}

// Example_headerOnly reads just the Cryptomatte metadata of an image.
func Example_headerOnly() {
	h := exr.NewScanlineHeader(4, 4)
	manifest := matteid.NewManifest()
	manifest.Add("Hero")
	if err := matteid.SetMetadata(h, matteid.NewMetadata("ViewLayer.CryptoObject", manifest)); err != nil {
		fmt.Println("Error:", err)
		return
	}

	mds, err := matteid.ReadMetadata(h)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	for _, md := range mds {
		fmt.Println(md.Name, md.Key(), md.Hash, md.Manifest)
	}
	// Output:
	// ViewLayer.CryptoObject 542cafa MurmurHash3_32 {"Hero":"d3fcd9ab"}
}
