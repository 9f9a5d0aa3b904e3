// Package hitokoto 一言
package hitokoto

import (
	"github.com/FloatTech/floatbox/web"
	ctrl "github.com/FloatTech/zbpctrl"
	control "github.com/FloatTech/zbputils/control"
	"github.com/FloatTech/zbputils/ctxext"
	"github.com/tidwall/gjson"
	zero "github.com/wdvxdr1123/ZeroBot"
	"github.com/wdvxdr1123/ZeroBot/message"
)

const api = "https://v1.hitokoto.cn"

var engine = control.AutoRegister(&ctrl.Options[*zero.Ctx]{
	DisableOnDefault: false,
	Brief:            "一言",
	Help:             "- 一言",
})

func init() {
	engine.OnFullMatch("一言").SetBlock(true).Limit(ctxext.LimitByUser).Handle(func(ctx *zero.Ctx) {
		data, err := web.GetData(api)
		if err != nil {
			ctx.SendChain(message.Text("请求失败: ", err))
			return
		}
		ctx.SendChain(message.Text(
			gjson.GetBytes(data, "hitokoto").String(),
			" —— ",
			gjson.GetBytes(data, "from").String(),
		))
	})
}
