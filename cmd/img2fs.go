package cmd

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	containerregistry "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/spf13/cobra"
)

const (
	// WhiteoutPrefix prefix means file is a whiteout.
	WhiteoutPrefix = ".wh."
	// WhiteoutOpaque hides everything lower layers put in its directory.
	WhiteoutOpaque = WhiteoutPrefix + WhiteoutPrefix + ".opq"
)

// img2fs converts a Docker image to a filesystem
var img2fs = &cobra.Command{
	Use:   "img2fs INPUT_TAR OUTPUT_TAR [TAG]",
	Short: "Convert a docker image to a .tar for use as a sandbox root filesystem.",
	Long: `Convert a docker image to a .tar for use as a sandbox root filesystem.

Prepare an image by running the following:

	docker pull some-image:latest
	docker save some-image:latest > some-image.tar
	sandsh img2fs some-image.tar fs.tar

Then point sandbox.root_fs in the configuration at fs.tar.
`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		inputPath := args[0]
		outputPath := args[1]

		tag, err := imageTag(inputPath, args[2:])
		if err != nil {
			return err
		}

		image, err := tarball.ImageFromPath(inputPath, &tag)
		if err != nil {
			return err
		}

		layers, err := image.Layers()
		if err != nil {
			return err
		}

		out, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer out.Close()

		return flattenLayers(layers, out)
	},
}

// imageTag returns the explicit tag or the only tag in the archive.
func imageTag(inputPath string, explicit []string) (name.Tag, error) {
	if len(explicit) > 0 {
		return name.NewTag(explicit[0])
	}

	manifest, err := tarball.LoadManifest(func() (io.ReadCloser, error) {
		return os.Open(inputPath)
	})
	if err != nil {
		return name.Tag{}, err
	}

	var tags []string
	for _, m := range manifest {
		tags = append(tags, m.RepoTags...)
	}
	if len(tags) != 1 {
		return name.Tag{}, fmt.Errorf("expected exactly one tag in the input, specify one of: %q", tags)
	}
	return name.NewTag(tags[0])
}

// layerWhiteouts is what one layer deletes from the layers below it.
type layerWhiteouts struct {
	files map[string]bool
	// dirs are opaque, everything below them is hidden.
	dirs []string
}

func (w *layerWhiteouts) hides(name string) bool {
	if w.files[name] {
		return true
	}
	for dir := range w.files {
		if strings.HasPrefix(name, dir+"/") {
			return true
		}
	}
	for _, dir := range w.dirs {
		if strings.HasPrefix(name, dir+"/") {
			return true
		}
	}
	return false
}

// forEachEntry calls fn with every entry of the uncompressed layer.
func forEachEntry(layerIdx int, layer containerregistry.Layer, fn func(hdr *tar.Header, r io.Reader) error) error {
	ul, err := layer.Uncompressed()
	if err != nil {
		return fmt.Errorf("couldn't decompress layer[%d]: %v", layerIdx, err)
	}
	defer ul.Close()

	tarReader := tar.NewReader(ul)
	for {
		hdr, err := tarReader.Next()
		if err == io.EOF {
			return nil // End of archive
		}
		if err != nil {
			return fmt.Errorf("couldn't read next file in layer[%d]: %v", layerIdx, err)
		}
		if err := fn(hdr, tarReader); err != nil {
			return err
		}
	}
}

func cleanEntryName(name string) string {
	return path.Clean("/" + name)
}

// flattenLayers writes the union of the layers to w as one tar, dropping
// whiteout markers and every file they delete.
func flattenLayers(layers []containerregistry.Layer, w io.Writer) error {
	whiteouts := make([]layerWhiteouts, len(layers))
	for layerIdx, layer := range layers {
		wo := layerWhiteouts{files: make(map[string]bool)}
		err := forEachEntry(layerIdx, layer, func(hdr *tar.Header, _ io.Reader) error {
			name := cleanEntryName(hdr.Name)
			base := path.Base(name)
			switch {
			case base == WhiteoutOpaque:
				wo.dirs = append(wo.dirs, path.Dir(name))
			case strings.HasPrefix(base, WhiteoutPrefix):
				wo.files[path.Join(path.Dir(name), strings.TrimPrefix(base, WhiteoutPrefix))] = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		whiteouts[layerIdx] = wo
	}

	tw := tar.NewWriter(w)
	defer tw.Close()

	for layerIdx, layer := range layers {
		err := forEachEntry(layerIdx, layer, func(hdr *tar.Header, r io.Reader) error {
			name := cleanEntryName(hdr.Name)
			if strings.HasPrefix(path.Base(name), WhiteoutPrefix) {
				return nil
			}
			for _, upper := range whiteouts[layerIdx+1:] {
				if upper.hides(name) {
					return nil
				}
			}

			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if hdr.Size > 0 {
				if _, err := io.Copy(tw, r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(img2fs)
}
