// Package bulletin 喜报悲报生成器
package bulletin

import (
	"strings"

	fcext "github.com/FloatTech/floatbox/ctxext"
	"github.com/FloatTech/floatbox/file"
	"github.com/FloatTech/gg"
	"github.com/FloatTech/imgfactory"
	ctrl "github.com/FloatTech/zbpctrl"
	control "github.com/FloatTech/zbputils/control"
	"github.com/FloatTech/zbputils/ctxext"
	"github.com/FloatTech/zbputils/img/text"
	zero "github.com/wdvxdr1123/ZeroBot"
	"github.com/wdvxdr1123/ZeroBot/message"
)

const (
	boardW      = 960
	boardH      = 540
	fontSize    = 65
	strokeWidth = 3
	lineRunes   = 20
)

type style struct {
	bg     [3]int
	fill   [3]int
	stroke [3]int
}

var styles = map[string]style{
	"喜报": {bg: [3]int{204, 0, 0}, fill: [3]int{255, 222, 89}, stroke: [3]int{128, 16, 8}},
	"悲报": {bg: [3]int{190, 190, 190}, fill: [3]int{0, 0, 0}, stroke: [3]int{255, 255, 255}},
}

var engine = control.AutoRegister(&ctrl.Options[*zero.Ctx]{
	DisableOnDefault: false,
	Brief:            "喜报悲报",
	Help:             "- 喜报 [内容]\n- 悲报 [内容]",
})

func init() {
	getfont := fcext.DoOnceOnSuccess(func(ctx *zero.Ctx) bool {
		_, err := file.GetLazyData(text.BoldFontFile, control.Md5File, true)
		if err != nil {
			ctx.SendChain(message.Text("[bulletin]下载字体时发生错误: ", err))
			return false
		}
		return true
	})
	for _, kind := range []string{"喜报", "悲报"} {
		kind := kind
		engine.OnPrefix(kind, getfont).SetBlock(true).Limit(ctxext.LimitByUser).Handle(func(ctx *zero.Ctx) {
			msg := strings.TrimSpace(strings.TrimPrefix(ctx.ExtractPlainText(), kind))
			if msg == "" {
				ctx.SendChain(message.Text("请在指令后跟上要发布的内容"))
				return
			}
			data, err := render(msg, styles[kind])
			if err != nil {
				ctx.SendChain(message.Text("[bulletin]生成失败: ", err))
				return
			}
			ctx.SendChain(message.ImageBytes(data))
		})
	}
}

// render 画板前提是字体已由 getfont 规则下载就绪
func render(msg string, st style) ([]byte, error) {
	msg = wrapRunes(msg, lineRunes)
	dc := gg.NewContext(boardW, boardH)
	dc.SetRGB255(st.bg[0], st.bg[1], st.bg[2])
	dc.Clear()
	if err := dc.LoadFontFace(text.BoldFontFile, fontSize); err != nil {
		return nil, err
	}
	// 八方向偏移重绘模拟描边
	dc.SetRGB255(st.stroke[0], st.stroke[1], st.stroke[2])
	for dy := -strokeWidth; dy <= strokeWidth; dy += strokeWidth {
		for dx := -strokeWidth; dx <= strokeWidth; dx += strokeWidth {
			if dx == 0 && dy == 0 {
				continue
			}
			drawCentered(dc, msg, float64(dx), float64(dy))
		}
	}
	dc.SetRGB255(st.fill[0], st.fill[1], st.fill[2])
	drawCentered(dc, msg, 0, 0)
	return imgfactory.ToBytes(dc.Image())
}

func drawCentered(dc *gg.Context, msg string, dx, dy float64) {
	dc.DrawStringWrapped(msg,
		float64(boardW)/2+dx, float64(boardH)/2+dy,
		0.5, 0.5,
		float64(boardW)-2*fontSize, 1.5,
		gg.AlignCenter,
	)
}

// wrapRunes 每 n 个字符强制换行，与生成图的固定宽度配合
func wrapRunes(s string, n int) string {
	r := []rune(s)
	var sb strings.Builder
	for i, c := range r {
		if i > 0 && i%n == 0 {
			sb.WriteByte('\n')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
